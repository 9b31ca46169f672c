// Package main implements the ffiec-collect command line tool.
//
// It reads credentials from the environment (FFIEC_USERNAME plus either
// FFIEC_PASSWORD for the legacy webservice or FFIEC_TOKEN for the REST
// API) and runs one operation against the retrieval service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/regdata/ffiec-connect/pkg/ffiec"
)

func main() {
	var (
		op     = flag.String("op", "periods", "operation: periods, ubpr-periods, panel, filers, submissions, collect, ubpr-collect, batch")
		period = flag.String("period", "", "reporting period (mm/dd/yyyy, yyyy-mm-dd, yyyymmdd, or #Qyyyy)")
		since  = flag.String("since", "", "cutoff date for filers and submissions")
		rssd   = flag.String("rssd", "", "RSSD id, comma-separated for batch")
		format = flag.String("format", "records", "output shape for collected data: records, table, parquet")
		out    = flag.String("out", "", "output file (default stdout; required for parquet)")
	)
	flag.Parse()

	cred, err := credentialFromEnv()
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}

	client, err := ffiec.NewClient(cred, nil)
	if err != nil {
		log.Fatalf("client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := run(ctx, client, *op, *period, *since, *rssd, *format, *out); err != nil {
		log.Fatalf("%s: %v", *op, err)
	}
}

// credentialFromEnv picks the protocol from which secret is present. A
// token wins when both are set.
func credentialFromEnv() (ffiec.Credential, error) {
	if token := os.Getenv("FFIEC_TOKEN"); token != "" {
		cred, err := ffiec.NewModernCredentials(os.Getenv("FFIEC_USERNAME"), token, time.Time{})
		if err != nil {
			return nil, err
		}
		return cred, nil
	}
	cred, err := ffiec.NewLegacyCredentials("", "")
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func run(ctx context.Context, client *ffiec.Client, op, period, since, rssd, format, out string) error {
	switch op {
	case "periods", "ubpr-periods":
		var periods []time.Time
		var err error
		if op == "periods" {
			periods, err = client.ReportingPeriods(ctx)
		} else {
			periods, err = client.UBPRReportingPeriods(ctx)
		}
		if err != nil {
			return err
		}
		rendered, err := client.RenderPeriods(periods)
		if err != nil {
			return err
		}
		return emitJSON(out, rendered)

	case "panel":
		panel, err := client.PanelOfReporters(ctx, period)
		if err != nil {
			return err
		}
		return emitJSON(out, panel)

	case "filers":
		ids, err := client.FilersSinceDate(ctx, period, since)
		if err != nil {
			return err
		}
		return emitJSON(out, ids)

	case "submissions":
		subs, err := client.FilersSubmissionDateTime(ctx, period, since)
		if err != nil {
			return err
		}
		return emitJSON(out, client.FormatSubmissions(subs))

	case "collect", "ubpr-collect":
		var recs []ffiec.Record
		var err error
		if op == "collect" {
			recs, err = client.CollectData(ctx, period, rssd)
		} else {
			recs, err = client.CollectUBPRData(ctx, period, rssd)
		}
		if err != nil {
			return err
		}
		return emitRecords(client, recs, format, out)

	case "batch":
		ids := strings.Split(rssd, ",")
		result, err := client.CollectBatch(ctx, period, ids)
		if err != nil {
			return err
		}
		log.Printf("run %s: %d/%d succeeded", result.RunID, result.Succeeded(), len(result.Results))
		all := make([]ffiec.Record, 0)
		for id, item := range result.Results {
			if item.Err != nil {
				log.Printf("rssd %s: %v", id, item.Err)
				continue
			}
			all = append(all, item.Records...)
		}
		return emitRecords(client, all, format, out)

	default:
		return fmt.Errorf("unknown operation %q", op)
	}
}

func emitRecords(client *ffiec.Client, recs []ffiec.Record, format, out string) error {
	shaped, err := client.Output(recs, ffiec.Format(format))
	if err != nil {
		return err
	}
	if raw, ok := shaped.([]byte); ok {
		if out == "" {
			return fmt.Errorf("parquet output requires -out")
		}
		return os.WriteFile(out, raw, 0o644)
	}
	return emitJSON(out, shaped)
}

func emitJSON(out string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if out == "" {
		_, err = os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(out, b, 0o644)
}
