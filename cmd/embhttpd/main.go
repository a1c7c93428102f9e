// Command embhttpd runs a demo device server: a simulated
// temperature sensor and a settable actuator exposed as HTTP
// resources, served either from a local TCP listener or through a
// reverse-HTTP relay, with Prometheus metrics on a side listener.
package main

import (
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/embhttp/embhttp/device"
	"github.com/embhttp/embhttp/httpd"
	"github.com/embhttp/embhttp/internal/obs"
	"github.com/embhttp/embhttp/relay"
	"github.com/embhttp/embhttp/stream"
)

type options struct {
	listen        string
	advertiseHost string
	relayHost     string
	relayPort     int
	relayDomain   string
	relayKey      string
	workers       int
	keepAlive     bool
	metricsListen string
	logLevel      string
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := &options{
		listen:        ":8080",
		relayPort:     80,
		metricsListen: "",
		logLevel:      "info",
	}
	cmd := &cobra.Command{
		Use:   "embhttpd",
		Short: "Embedded device HTTP server, directly or through a reverse-HTTP relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", opts.listen, "TCP listen address (ignored with --relay-domain)")
	cmd.Flags().StringVar(&opts.advertiseHost, "advertise-host", "", "host to advertise in the service root URL")
	cmd.Flags().StringVar(&opts.relayHost, "relay-host", "", "reverse-HTTP relay host")
	cmd.Flags().IntVar(&opts.relayPort, "relay-port", opts.relayPort, "reverse-HTTP relay port")
	cmd.Flags().StringVar(&opts.relayDomain, "relay-domain", "", "relay domain to register; enables relay mode")
	cmd.Flags().StringVar(&opts.relayKey, "relay-key", "", "relay registration secret key")
	cmd.Flags().IntVar(&opts.workers, "workers", 1, "request worker count (>1 enables the bounded worker pool)")
	cmd.Flags().BoolVar(&opts.keepAlive, "keep-alive", false, "keep connections open after a response (single-worker mode)")
	cmd.Flags().StringVar(&opts.metricsListen, "metrics-listen", opts.metricsListen, "optional listen address for Prometheus metrics")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	return cmd
}

func run(opts *options) error {
	level, err := zerolog.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	zl := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	logger := obs.ZeroLogger{L: zl}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	meter := obs.NewPromMeter(reg)

	provider, err := newProvider(opts, logger)
	if err != nil {
		return err
	}

	routes := httpd.NewRouter()
	temperature := &device.Exchange{}
	go sampleTemperature(temperature)
	if _, err := device.Expose(routes, "/temperature", temperature, "text/plain"); err != nil {
		return err
	}
	led := &device.Exchange{}
	_ = led.Put("off")
	if _, err := device.Expose(routes, "/actuators/led", led, "text/plain"); err != nil {
		return err
	}

	s := &httpd.Server{
		Provider:                        provider,
		Routes:                          routes,
		Workers:                         opts.workers,
		CatchHandlerFailures:            true,
		KeepConnectionOpenAfterResponse: opts.keepAlive,
		Logger:                          logger,
		Meter:                           meter,
	}
	if _, err := routes.Add("GET /status", statusHandler(s)); err != nil {
		return err
	}

	if opts.metricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(opts.metricsListen, mux); err != nil {
				logger.Logf(obs.Error, "metrics listener failed: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Logf(obs.Info, "shutting down")
		_ = s.Close()
	}()

	logger.Logf(obs.Info, "serving at %s", provider.LocalURL())
	return s.Run()
}

func newProvider(opts *options, logger obs.Logger) (stream.Provider, error) {
	if opts.relayDomain != "" {
		clientOpts := []relay.Option{relay.WithLogger(logger)}
		if opts.relayKey != "" {
			clientOpts = append(clientOpts, relay.WithSecretKey(opts.relayKey))
		}
		return relay.NewClient(opts.relayHost, opts.relayPort, opts.relayDomain, clientOpts...), nil
	}
	return stream.Listen(opts.listen, opts.advertiseHost)
}

// sampleTemperature feeds the exchange the way a sensor driver would:
// a free-running sampling loop publishing the most recent reading.
func sampleTemperature(x *device.Exchange) {
	start := time.Now()
	for {
		t := 21.0 + 3.0*math.Sin(time.Since(start).Seconds()/60)
		_ = x.Put(strconv.FormatFloat(t, 'f', 2, 64))
		time.Sleep(2 * time.Second)
	}
}

func statusHandler(s *httpd.Server) httpd.Handler {
	return httpd.HandlerFunc(func(c *httpd.Context) {
		d := s.Diagnostics()
		body := fmt.Sprintf(
			"uptime: %s\nrequests: %d\naccept errors: %d\naccept failures: %d\nhandler errors: %d\nhandler failures: %d\n",
			d.Uptime.Round(time.Second), d.Requests,
			d.AcceptErrors, d.AcceptFailures,
			d.HandlerErrors, d.HandlerFailures,
		)
		c.SetResponse(body, "text/plain")
	})
}
