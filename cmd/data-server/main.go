// Command data-server is the fan-out hub of the fabric: nodes connect to
// its update port and push readings, errors, and affector registrations;
// subscribers (chiefly data-store) connect to its subscribe port and
// receive an unending broadcast stream plus a one-off Actuate request/
// response exchange.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/sensormesh/fabric/internal/adminhttp"
	"github.com/sensormesh/fabric/internal/affector"
	"github.com/sensormesh/fabric/internal/bus"
	"github.com/sensormesh/fabric/internal/config"
	"github.com/sensormesh/fabric/internal/opstelemetry"
	"github.com/sensormesh/fabric/internal/runtimeEnv"
	"github.com/sensormesh/fabric/pkg/log"
)

func main() {
	var subscribePort, updatePort int
	var configFile string
	var flagGops bool
	flag.IntVar(&subscribePort, "subscribe-port", 0, "TCP port subscribers connect to (required)")
	flag.IntVar(&updatePort, "update-port", 0, "TCP port producer nodes connect to (required)")
	flag.StringVar(&configFile, "config", "", "Path to a data-server config.json (optional)")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if subscribePort == 0 || updatePort == 0 {
		log.Fatal("both --subscribe-port and --update-port are required")
	}
	if subscribePort == updatePort {
		log.Fatal("--subscribe-port and --update-port must differ")
	}

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	cfg := config.DataServer{LogLevel: "info", AdminAddr: "localhost:8081"}
	if configFile != "" {
		var err error
		cfg, err = config.LoadDataServer(configFile)
		if err != nil {
			log.Fatal(err)
		}
	}
	log.SetLogLevel(cfg.LogLevel)
	log.SetLogDateTime(cfg.LogDate)

	metrics := adminhttp.NewMetrics()
	b := bus.New()
	registry := affector.New()

	telemetry, err := opstelemetry.Connect(cfg.OpsTelemetry)
	if err != nil {
		log.Fatal(err)
	}
	defer telemetry.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	srv := &Server{Bus: b, Affectors: registry, Metrics: metrics, Telemetry: telemetry}

	updateListener, err := net.Listen("tcp", portAddr(updatePort))
	if err != nil {
		log.Fatalf("listening on update port: %s", err.Error())
	}
	subscribeListener, err := net.Listen("tcp", portAddr(subscribePort))
	if err != nil {
		log.Fatalf("listening on subscribe port: %s", err.Error())
	}

	adminRouter := adminhttp.NewRouter(adminhttp.Deps{Bus: b, Affectors: registry, Metrics: metrics})
	adminListener, err := net.Listen("tcp", cfg.AdminAddr)
	if err != nil {
		log.Fatalf("listening on admin addr: %s", err.Error())
	}

	if cfg.User != "" || cfg.Group != "" {
		if err := runtimeEnv.DropPrivileges(cfg.User, cfg.Group); err != nil {
			log.Fatalf("dropping privileges: %s", err.Error())
		}
	}

	go srv.serveUpdates(ctx, updateListener)
	go srv.serveSubscribers(ctx, subscribeListener)
	adminSrv := &http.Server{Handler: adminhttp.LoggingHandler(adminRouter)}
	go func() {
		if err := adminSrv.Serve(adminListener); err != nil && err != http.ErrServerClosed {
			log.Errorf("admin http server: %v", err)
		}
	}()

	go srv.publishTelemetry(ctx)

	log.Infof("data-server listening: updates=%d subscribers=%d admin=%s", updatePort, subscribePort, cfg.AdminAddr)
	runtimeEnv.SystemdNotifiy(true, "running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()
	updateListener.Close()
	subscribeListener.Close()
	adminSrv.Close()
	log.Print("data-server: graceful shutdown complete")
}

func portAddr(port int) string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
}
