package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/sheet"
)

var classifyFlags struct {
	input       string
	description string
	descHE      string
	material    string
	form        string
	use         string
	origin      string
	candidates  string
	subject     string
	messageID   string
	fta         bool
	format      string
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a single request",
	Long:  "Classifies one request read from a JSON file (--input, or - for stdin) or built from the product flags.",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := classifyRequest(cmd.InOrStdin())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "classify")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Pipeline.Run(ctx, req)
		zap.L().Info("classification complete",
			zap.String("run_id", res.RunID),
			zap.String("status", string(res.Status)),
			zap.Float64("spent_usd", res.Budget.SpentUSD),
		)
		return writeResult(cmd.OutOrStdout(), classifyFlags.format, res)
	},
}

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&classifyFlags.input, "input", "", "path to a JSON request (- for stdin)")
	f.StringVar(&classifyFlags.description, "description", "", "product description in English")
	f.StringVar(&classifyFlags.descHE, "description-he", "", "product description in Hebrew")
	f.StringVar(&classifyFlags.material, "material", "", "product material")
	f.StringVar(&classifyFlags.form, "form", "", "product form")
	f.StringVar(&classifyFlags.use, "use", "", "intended use")
	f.StringVar(&classifyFlags.origin, "origin", "", "ISO country of origin")
	f.StringVar(&classifyFlags.candidates, "candidates", "", "candidate codes as code[:confidence] separated by ;")
	f.StringVar(&classifyFlags.subject, "subject", "", "conversation subject")
	f.StringVar(&classifyFlags.messageID, "message-id", "", "conversation message id")
	f.BoolVar(&classifyFlags.fta, "fta", false, "shipper asserted trade-agreement origin")
	f.StringVar(&classifyFlags.format, "format", "json", "output format (json or text)")
	rootCmd.AddCommand(classifyCmd)
}

// classifyRequest builds the request from --input or from the product flags.
func classifyRequest(stdin io.Reader) (model.Request, error) {
	if classifyFlags.input != "" {
		return readRequest(classifyFlags.input, stdin)
	}
	if classifyFlags.description == "" && classifyFlags.descHE == "" {
		return model.Request{}, eris.New("either --input or --description is required")
	}

	cands, err := sheet.ParseCandidates(classifyFlags.candidates)
	if err != nil {
		return model.Request{}, eris.Wrap(err, "parse --candidates")
	}
	return model.Request{
		Subject:   classifyFlags.subject,
		MessageID: classifyFlags.messageID,
		Items: []model.Item{{
			Product: model.ProductInfo{
				Description:   model.Bilingual{EN: classifyFlags.description, HE: classifyFlags.descHE},
				Material:      classifyFlags.material,
				Form:          classifyFlags.form,
				IntendedUse:   classifyFlags.use,
				OriginCountry: strings.ToUpper(classifyFlags.origin),
			},
			Candidates:  cands,
			FTAEligible: classifyFlags.fta,
		}},
	}, nil
}

func readRequest(path string, stdin io.Reader) (model.Request, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return model.Request{}, eris.Wrapf(err, "open request %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var req model.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return model.Request{}, eris.Wrap(err, "decode request")
	}
	return req, nil
}

// writeResult prints res as indented JSON or as the item explanations.
func writeResult(w io.Writer, format string, res *model.RunResult) error {
	switch format {
	case "text":
		if res.Escalation != nil {
			fmt.Fprintf(w, "Escalated to a human reviewer: %s\n", res.Escalation.Summary)
		}
		for _, ir := range res.Items {
			fmt.Fprintln(w, ir.Explanation)
			fmt.Fprintln(w)
		}
		for _, c := range res.Caveats {
			fmt.Fprintf(w, "Note: %s\n", c)
		}
		fmt.Fprintf(w, "Run %s: %s, spent $%.4f\n", res.RunID, res.Status, res.Budget.SpentUSD)
		return nil
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "encode result")
	default:
		return eris.Errorf("unknown format %q", format)
	}
}
