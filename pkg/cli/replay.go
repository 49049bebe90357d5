package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/dispatchd/dispatchd/pkg/expectation"
	"github.com/dispatchd/dispatchd/pkg/httpclient"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
	"github.com/dispatchd/dispatchd/pkg/logging"
)

var (
	replayFile     string
	replayID       string
	replaySchedule string
	replayTimeout  time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Periodically re-send a Forward expectation's request at its target on a cron schedule",
	Long: `replay loads a single expectation by ID and, if its action is a Forward,
re-sends the expectation's own matcher as a synthetic request against that
forward target on the given cron schedule. It is meant for exercising an
origin with the same traffic shape dispatchd itself would forward, without
waiting for live requests to arrive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayFile, "file", "expectations.json", "Path to the expectations file")
	replayCmd.Flags().StringVar(&replayID, "id", "", "ID of the Forward expectation to replay")
	replayCmd.Flags().StringVar(&replaySchedule, "schedule", "*/30 * * * * *", "Cron schedule (seconds-field supported) the replay runs on")
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", 5*time.Second, "Per-attempt send timeout")
	replayCmd.MarkFlagRequired("id")
}

func runReplay(cmd *cobra.Command, args []string) error {
	log := logging.New(logging.DefaultConfig())

	expectations, err := loadExpectationsFile(replayFile)
	if err != nil {
		return err
	}

	target, err := findReplayTarget(expectations, replayID)
	if err != nil {
		return err
	}

	client := httpclient.New(nil)
	c := cron.New(cron.WithSeconds())

	_, err = c.AddFunc(replaySchedule, func() {
		pending := client.Send(context.Background(), target.syntheticRequest(), nil, replayTimeout)
		resp, err := pending.Await()
		if err != nil {
			log.Error("replay attempt failed", "id", replayID, "error", err)
			return
		}
		log.Info("replay attempt completed", "id", replayID, "status", resp.StatusCode)
	})
	if err != nil {
		return fmt.Errorf("cli: invalid --schedule %q: %w", replaySchedule, err)
	}

	c.Start()
	log.Info("replay scheduled", "id", replayID, "schedule", replaySchedule, "target", target.url())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("stopping replay")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// replayTarget is the subset of a Forward expectation replay needs:
// enough to build one synthetic request against the forward origin.
type replayTarget struct {
	host, scheme, method, path string
	port                       int
}

func (t replayTarget) url() string {
	return fmt.Sprintf("%s://%s:%d%s", t.scheme, t.host, t.port, t.path)
}

func (t replayTarget) syntheticRequest() httpmsg.Request {
	u, _ := url.Parse(t.url())
	return httpmsg.Request{Method: t.method, URI: u, Header: make(map[string][]string)}
}

func findReplayTarget(expectations []expectation.Expectation, id string) (replayTarget, error) {
	for _, exp := range expectations {
		if exp.ID != id {
			continue
		}
		doc := expectation.FromExpectation(exp)
		if doc.Action.Kind != "Forward" {
			return replayTarget{}, fmt.Errorf("cli: expectation %q is a %s action, replay only supports Forward", id, doc.Action.Kind)
		}
		method := doc.Matcher.Method
		if method == "" {
			method = "GET"
		}
		path := doc.Matcher.PathExact
		if path == "" {
			path = "/"
		}
		scheme := doc.Action.Scheme
		if scheme == "" {
			scheme = "http"
		}
		return replayTarget{host: doc.Action.Host, port: doc.Action.Port, scheme: scheme, method: method, path: path}, nil
	}
	return replayTarget{}, fmt.Errorf("cli: no expectation with id %q", id)
}
