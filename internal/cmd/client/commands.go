package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dispatchv1 "github.com/rzbill/dispatch/api/dispatch/v1"
)

// newPublishCommand constructs the `publish` subcommand.
func newPublishCommand() *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a message to a key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			data, _ := cmd.Flags().GetString("data")
			rawHeaders, _ := cmd.Flags().GetStringArray("header")
			headersJSON, _ := cmd.Flags().GetString("header-json")
			rid, _ := cmd.Flags().GetString("request-id")
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			headers, err := parseHeaders(rawHeaders, headersJSON)
			if err != nil {
				return err
			}
			return withDispatchClient(func(c *dispatchv1.Client) error {
				ctx := requestContext(cmd.Context(), rid)
				res, err := c.Publish(ctx, dispatchv1.PublishRequest{Key: key, Payload: []byte(data), Headers: headers})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "id:", res.ID)
				return nil
			})
		},
	}
	publishCmd.Flags().StringP("key", "k", "", "Key to publish to")
	publishCmd.Flags().String("data", "", "Payload data")
	publishCmd.Flags().StringArray("header", []string{}, "Message header key=value (repeat)")
	publishCmd.Flags().String("header-json", "", "Headers as JSON object, e.g. '{\"k\":\"v\"}'")
	publishCmd.Flags().String("request-id", "", "Request id attached to server logs")
	return publishCmd
}

// newSubscribeCommand constructs the `subscribe` subcommand. Each delivery
// is printed as one JSON line. With --reconnect the subscription is reopened
// with exponential backoff while the server is unavailable.
func newSubscribeCommand() *cobra.Command {
	subscribeCmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to a key over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			rid, _ := cmd.Flags().GetString("request-id")
			reconnect, _ := cmd.Flags().GetBool("reconnect")
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			ctx := requestContext(cmd.Context(), rid)
			enc := json.NewEncoder(cmd.OutOrStdout())
			remaining := limit
			subscribeOnce := func() error {
				if limit > 0 && remaining == 0 {
					return nil
				}
				return withDispatchClient(func(c *dispatchv1.Client) error {
					req := dispatchv1.SubscribeRequest{Key: key, Filter: filter, Limit: remaining}
					return c.Subscribe(ctx, req, func(d dispatchv1.Delivery) error {
						if err := enc.Encode(decodedMessage(d)); err != nil {
							return err
						}
						if limit > 0 {
							remaining--
						}
						return nil
					})
				})
			}
			if !reconnect {
				return subscribeOnce()
			}
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = 200 * time.Millisecond
			eb.MaxElapsedTime = 0
			return backoff.Retry(func() error {
				err := subscribeOnce()
				if err == nil || status.Code(err) != codes.Unavailable {
					return backoff.Permanent(err)
				}
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "reconnecting:", err)
				return err
			}, backoff.WithContext(eb, ctx))
		},
	}
	subscribeCmd.Flags().StringP("key", "k", "", "Key to subscribe to")
	subscribeCmd.Flags().String("filter", "", "CEL filter, e.g. 'headers[\"type\"] == \"order\"'")
	subscribeCmd.Flags().Int("limit", 0, "Stop after N messages (0 = infinite)")
	subscribeCmd.Flags().String("request-id", "", "Request id attached to server logs")
	subscribeCmd.Flags().Bool("reconnect", false, "Resubscribe with backoff while the server is unavailable")
	return subscribeCmd
}

func newUnsubscribeCommand() *cobra.Command {
	unsubscribeCmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Detach the consumer bound to a key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			return withDispatchClient(func(c *dispatchv1.Client) error {
				if err := c.Unsubscribe(cmd.Context(), key); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	unsubscribeCmd.Flags().StringP("key", "k", "", "Key")
	return unsubscribeCmd
}

// newStatsCommand prints engine stats, and a key's state with --key.
func newStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			return withDispatchClient(func(c *dispatchv1.Client) error {
				st, err := c.Stats(cmd.Context(), dispatchv1.StatsRequest{Key: key})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "keys: %d\nsubscribed: %d\nqueued: %d\n", st.Keys, st.Subscribed, st.Queued)
				_, _ = fmt.Fprintf(out, "pushed: %d\nrejected: %d\ndelivered: %d\n", st.Pushed, st.Rejected, st.Delivered)
				_, _ = fmt.Fprintf(out, "panics: %d\nsweeps: %d\nevicted: %d\n", st.Panics, st.Sweeps, st.Evicted)
				if key != "" {
					if !st.KeyFound {
						_, _ = fmt.Fprintf(out, "key %s: not found\n", key)
						return nil
					}
					_, _ = fmt.Fprintf(out, "key %s: queued=%d subscribed=%t\n", key, st.KeyQueued, st.KeySubscribed)
				}
				return nil
			})
		},
	}
	statsCmd.Flags().StringP("key", "k", "", "Also show this key")
	return statsCmd
}

// newJournalCommand lists journaled entries through the HTTP API.
func newJournalCommand(baseURL BaseURLFunc) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "List journaled deliveries for a key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, _ := cmd.Flags().GetString("key")
			after, _ := cmd.Flags().GetUint64("after")
			limit, _ := cmd.Flags().GetInt("limit")
			wait, _ := cmd.Flags().GetDuration("wait")
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			q := url.Values{}
			q.Set("key", key)
			q.Set("after", strconv.FormatUint(after, 10))
			q.Set("limit", strconv.Itoa(limit))
			if wait > 0 {
				q.Set("wait_ms", strconv.FormatInt(wait.Milliseconds(), 10))
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, baseURL()+"/v1/journal?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("journal: %s: %s", resp.Status, body)
			}
			_, _ = cmd.OutOrStdout().Write(body)
			return nil
		},
	}
	journalCmd.Flags().StringP("key", "k", "", "Journaled key")
	journalCmd.Flags().Uint64("after", 0, "Only entries with seq > after")
	journalCmd.Flags().Int("limit", 100, "Maximum entries")
	journalCmd.Flags().Duration("wait", 0, "Long-poll up to this long for a new entry")
	return journalCmd
}
