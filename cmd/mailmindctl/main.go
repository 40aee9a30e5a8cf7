package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	addrFlag = flag.String("addr", "http://127.0.0.1:8400", "daemon API address")
	jsonFlag = flag.Bool("json", false, "print raw JSON responses")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctl := &control{base: strings.TrimRight(*addrFlag, "/")}

	var err error
	switch args[0] {
	case "status":
		err = ctl.cmdStatus()
	case "sync":
		err = ctl.cmdSync(args[1:])
	case "emails":
		err = ctl.cmdEmails(args[1:])
	case "process":
		err = ctl.cmdProcess(args[1:])
	case "content":
		err = ctl.cmdContent(args[1:])
	case "proposals":
		err = ctl.cmdProposals(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `usage: mailmindctl [flags] <command>

commands:
  status                          show daemon and sync status
  sync connect                    connect to the IMAP server
  sync disconnect                 disconnect from the IMAP server
  sync run [folder] [--limit=N]   sync one folder incrementally
  sync folders                    list folders on the server
  emails list [--folder=F] [--unread] [--limit=N]
  emails show <id>                show one email with its links
  process run [--limit=N]         classify unprocessed emails
  process email <id>              classify a single email
  process stats                   show processing statistics
  content scan [--min-relevance=R]
  content pipeline [--min-relevance=R] [--limit-per-type=N] [--dry-run]
  content intelligence            show the content report
  content links [--min-relevance=R] [--limit=N]
  proposals generate              generate pending proposals
  proposals list [--status=S]     list proposals
  proposals show <id>             show one proposal with items
  proposals approve <id>
  proposals reject <id>

flags:
`)
	flag.PrintDefaults()
}

type control struct {
	base string
}

func (ctl *control) cmdStatus() error {
	return ctl.get("/api/sync/status", nil, func(v map[string]any) {
		fmt.Printf("state:        %v\n", v["state"])
		fmt.Printf("total emails: %v\n", v["total_emails"])
		if states, ok := v["sync_states"].([]any); ok {
			for _, s := range states {
				m, ok := s.(map[string]any)
				if !ok {
					continue
				}
				fmt.Printf("  %v: last_uid=%v synced=%v\n", m["folder"], m["last_uid"], m["total_synced"])
			}
		}
	})
}

func (ctl *control) cmdSync(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("sync requires a subcommand (connect, disconnect, run, folders)")
	}
	switch args[0] {
	case "connect":
		return ctl.post("/api/sync/connect", nil, nil)
	case "disconnect":
		return ctl.post("/api/sync/disconnect", nil, nil)
	case "run":
		fs := flag.NewFlagSet("sync run", flag.ExitOnError)
		limit := fs.Int("limit", 0, "maximum messages to fetch")
		_ = fs.Parse(args[1:])
		q := url.Values{}
		if fs.NArg() > 0 {
			q.Set("folder", fs.Arg(0))
		}
		if *limit > 0 {
			q.Set("limit", fmt.Sprint(*limit))
		}
		return ctl.post("/api/sync/run?"+q.Encode(), nil, func(v map[string]any) {
			fmt.Printf("folder %v: %v new, %v skipped, %v errors (cursor %v)\n",
				v["folder"], v["new_messages"], v["skipped"], v["errors"], v["last_uid"])
		})
	case "folders":
		return ctl.get("/api/sync/folders", nil, func(v map[string]any) {
			if folders, ok := v["folders"].([]any); ok {
				for _, f := range folders {
					fmt.Println(f)
				}
			}
		})
	default:
		return fmt.Errorf("unknown sync subcommand: %s", args[0])
	}
}

func (ctl *control) cmdEmails(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("emails requires a subcommand (list, show)")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("emails list", flag.ExitOnError)
		folder := fs.String("folder", "", "filter by folder")
		unread := fs.Bool("unread", false, "only unread emails")
		limit := fs.Int("limit", 50, "maximum rows")
		_ = fs.Parse(args[1:])
		q := url.Values{"limit": {fmt.Sprint(*limit)}}
		if *folder != "" {
			q.Set("folder", *folder)
		}
		if *unread {
			q.Set("unread", "true")
		}
		return ctl.get("/api/emails?"+q.Encode(), nil, func(v map[string]any) {
			emails, _ := v["emails"].([]any)
			for _, e := range emails {
				m, ok := e.(map[string]any)
				if !ok {
					continue
				}
				fmt.Printf("%6v  %-30v  %v\n", m["id"], trim(fmt.Sprint(m["from_address"]), 30), m["subject"])
			}
			fmt.Printf("%v emails\n", v["count"])
		})
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("emails show requires an id")
		}
		return ctl.get("/api/emails/"+args[1], nil, nil)
	default:
		return fmt.Errorf("unknown emails subcommand: %s", args[0])
	}
}

func (ctl *control) cmdProcess(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("process requires a subcommand (run, email, stats)")
	}
	switch args[0] {
	case "run":
		fs := flag.NewFlagSet("process run", flag.ExitOnError)
		limit := fs.Int("limit", 50, "maximum emails to classify")
		_ = fs.Parse(args[1:])
		path := fmt.Sprintf("/api/process/run?limit=%d", *limit)
		return ctl.post(path, nil, func(v map[string]any) {
			fmt.Printf("processed %v emails (%v errors, %v links found)\n",
				v["processed"], v["errors"], v["links_found"])
		})
	case "email":
		if len(args) < 2 {
			return fmt.Errorf("process email requires an id")
		}
		return ctl.post("/api/process/email/"+args[1], nil, func(v map[string]any) {
			fmt.Printf("email %v: %v (relevance %v), %v links\n",
				v["email_id"], v["category"], v["relevance"], v["links_found"])
		})
	case "stats":
		return ctl.get("/api/process/stats", nil, nil)
	default:
		return fmt.Errorf("unknown process subcommand: %s", args[0])
	}
}

func (ctl *control) cmdContent(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("content requires a subcommand (scan, pipeline, intelligence, links)")
	}
	switch args[0] {
	case "scan":
		fs := flag.NewFlagSet("content scan", flag.ExitOnError)
		minRelevance := fs.Float64("min-relevance", 0.3, "minimum link relevance")
		_ = fs.Parse(args[1:])
		path := fmt.Sprintf("/api/content/scan?min_relevance=%g", *minRelevance)
		return ctl.post(path, nil, nil)
	case "pipeline":
		fs := flag.NewFlagSet("content pipeline", flag.ExitOnError)
		minRelevance := fs.Float64("min-relevance", 0.5, "minimum link relevance for dispatch")
		limitPerType := fs.Int("limit-per-type", 20, "maximum links per content type")
		dryRun := fs.Bool("dry-run", false, "preview without dispatching")
		_ = fs.Parse(args[1:])
		q := url.Values{
			"min_relevance":  {fmt.Sprintf("%g", *minRelevance)},
			"limit_per_type": {fmt.Sprint(*limitPerType)},
		}
		if *dryRun {
			q.Set("dry_run", "true")
		}
		return ctl.post("/api/content/pipeline?"+q.Encode(), nil, nil)
	case "intelligence":
		return ctl.get("/api/content/intelligence", nil, nil)
	case "links":
		fs := flag.NewFlagSet("content links", flag.ExitOnError)
		minRelevance := fs.Float64("min-relevance", 0.6, "minimum link relevance")
		limit := fs.Int("limit", 50, "maximum rows")
		_ = fs.Parse(args[1:])
		path := fmt.Sprintf("/api/content/links?min_relevance=%g&limit=%d", *minRelevance, *limit)
		return ctl.get(path, nil, func(v map[string]any) {
			links, _ := v["links"].([]any)
			for _, l := range links {
				m, ok := l.(map[string]any)
				if !ok {
					continue
				}
				fmt.Printf("%.2v  %-12v  %v\n", m["relevance_score"], m["link_type"], m["url"])
			}
			fmt.Printf("%v links\n", v["count"])
		})
	default:
		return fmt.Errorf("unknown content subcommand: %s", args[0])
	}
}

func (ctl *control) cmdProposals(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("proposals requires a subcommand (generate, list, show, approve, reject)")
	}
	switch args[0] {
	case "generate":
		return ctl.post("/api/proposals/generate", nil, func(v map[string]any) {
			fmt.Printf("generated %v proposals\n", v["count"])
		})
	case "list":
		fs := flag.NewFlagSet("proposals list", flag.ExitOnError)
		statusFilter := fs.String("status", "", "filter by status")
		_ = fs.Parse(args[1:])
		q := url.Values{}
		if *statusFilter != "" {
			q.Set("status", *statusFilter)
		}
		return ctl.get("/api/proposals?"+q.Encode(), nil, func(v map[string]any) {
			proposals, _ := v["proposals"].([]any)
			for _, p := range proposals {
				m, ok := p.(map[string]any)
				if !ok {
					continue
				}
				fmt.Printf("%4v  %-12v  %-10v  %v\n", m["id"], m["proposal_type"], m["status"], m["title"])
			}
			fmt.Printf("%v proposals\n", v["count"])
		})
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("proposals show requires an id")
		}
		return ctl.get("/api/proposals/"+args[1], nil, nil)
	case "approve":
		if len(args) < 2 {
			return fmt.Errorf("proposals approve requires an id")
		}
		return ctl.post("/api/proposals/"+args[1]+"/approve", nil, nil)
	case "reject":
		if len(args) < 2 {
			return fmt.Errorf("proposals reject requires an id")
		}
		return ctl.post("/api/proposals/"+args[1]+"/reject", nil, nil)
	default:
		return fmt.Errorf("unknown proposals subcommand: %s", args[0])
	}
}

func (ctl *control) get(path string, body any, render func(map[string]any)) error {
	return ctl.request(http.MethodGet, path, body, render)
}

func (ctl *control) post(path string, body any, render func(map[string]any)) error {
	return ctl.request(http.MethodPost, path, body, render)
}

func (ctl *control) request(method, path string, body any, render func(map[string]any)) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, ctl.base+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unexpected response: %s", trim(string(data), 200))
	}
	if resp.StatusCode >= 400 {
		if msg, ok := v["error"].(string); ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if *jsonFlag || render == nil {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	render(v)
	return nil
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
