package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/extractor"
)

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <image>",
		Short: "Read commission figures off a stub image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			mime := mimeByExt[strings.ToLower(filepath.Ext(args[0]))]
			if mime == "" {
				mime = http.DetectContentType(img)
			}

			p := cfg.ExtractionProvider
			if provider != "" {
				p = provider
			}
			ext, err := extractor.New(extractor.Settings{
				Provider: p,
				AgentURL: cfg.AgentAPIURL,
				OpenAI: extractor.OpenAIConfig{
					APIKey:  cfg.OpenAIAPIKey,
					BaseURL: cfg.OpenAIBaseURL,
					Model:   cfg.OpenAIModel,
				},
				Timeout:        cfg.ExtractionTimeout,
				MaxRetries:     cfg.ExtractionMaxRetries,
				InitialBackoff: cfg.InitialBackoff,
			}, &http.Client{}, nil, zap.NewNop())
			if err != nil {
				return err
			}

			res := domain.CommissionImportResult{}
			b, err := ext.Extract(cmd.Context(), domain.CommissionStub{Image: img, MimeType: mime})
			if err != nil || b == nil {
				res.Commission = domain.NewCommission("", domain.CommissionBreakdown{}, false)
				res.Warning = domain.StubFallbackWarning
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "extraction failed: %v\n", err)
				}
			} else {
				res.Commission = domain.NewCommission("", *b, false)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			out := cmd.OutOrStdout()
			c := res.Commission
			fmt.Fprintf(out, "Gross:  %.2f\nBroker: %.2f\nTeam:   %.2f\nAdmin:  %.2f\nNet:    %.2f\n",
				c.GrossCommission, c.BrokerSplit, c.TeamSplit, c.AdminFees, c.NetCommission)
			if res.Warning != "" {
				fmt.Fprintln(out, res.Warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "override EXTRACTION_PROVIDER (agent, openai, none)")
	return cmd
}
