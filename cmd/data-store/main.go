// Command data-store subscribes to a data-server's broadcast stream and
// persists it: readings into a per-device time series on disk, device
// errors and affector activations into a durable SQL log. It also runs the
// periodic housekeeping that prunes old error rows and ships cold series
// files off to S3-compatible storage.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/sensormesh/fabric/internal/adminhttp"
	"github.com/sensormesh/fabric/internal/archive"
	"github.com/sensormesh/fabric/internal/config"
	"github.com/sensormesh/fabric/internal/logstore"
	"github.com/sensormesh/fabric/internal/rpc"
	"github.com/sensormesh/fabric/internal/runtimeEnv"
	"github.com/sensormesh/fabric/internal/tasks"
	"github.com/sensormesh/fabric/pkg/log"
	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/series"
	"github.com/sensormesh/fabric/pkg/wire"
)

func main() {
	var configFile string
	var flagGops bool
	flag.StringVar(&configFile, "config", "", "Path to a data-store config.json (required)")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if configFile == "" {
		log.Fatal("--config is required")
	}

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	cfg, err := config.LoadDataStore(configFile)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLogLevel(cfg.LogLevel)
	log.SetLogDateTime(cfg.LogDate)

	if cfg.DB.DSN == "" {
		log.Fatal("db.dsn must be set")
	}
	if err := logstore.Migrate(cfg.DB.Driver, cfg.DB.DSN); err != nil {
		log.Fatalf("logstore: migrate: %s", err.Error())
	}
	logs, err := logstore.Connect(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("logstore: connect: %s", err.Error())
	}
	defer logs.Close()

	hists := logstore.NewHistogramStore(logs)
	if err := hists.LoadAll(); err != nil {
		log.Fatalf("logstore: load histogram snapshots: %s", err.Error())
	}

	seriesStore := series.Open(cfg.SeriesDir)
	defer seriesStore.Close()

	metrics := adminhttp.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())

	uploader, err := archive.NewUploader(ctx, cfg.Archive)
	if err != nil {
		log.Fatalf("archive: %s", err.Error())
	}

	taskMgr, err := tasks.Start()
	if err != nil {
		log.Fatalf("tasks: %s", err.Error())
	}
	defer taskMgr.Shutdown()
	if err := taskMgr.RegisterErrorRetention(logs, time.Duration(cfg.ErrorRetentionDays)*24*time.Hour); err != nil {
		log.Fatalf("tasks: register error retention: %s", err.Error())
	}
	if err := taskMgr.RegisterSeriesArchive(
		cfg.SeriesDir,
		time.Duration(cfg.SeriesStaleDays)*24*time.Hour,
		time.Duration(cfg.ArchiveIntervalMin)*time.Minute,
		uploader,
	); err != nil {
		log.Fatalf("tasks: register series archive: %s", err.Error())
	}
	if err := taskMgr.RegisterHistogramPersist(hists, 5*time.Minute); err != nil {
		log.Fatalf("tasks: register histogram persist: %s", err.Error())
	}

	sub := &Subscriber{Series: seriesStore, Logs: logs, Histograms: hists, Metrics: metrics}
	client := rpc.NewClient(cfg.ServerAddr)

	adminRouter := adminhttp.NewRouter(adminhttp.Deps{
		Series:     seriesStore,
		Logs:       logs,
		Histograms: hists,
		Metrics:    metrics,
		Actuate: func(a reading.Affector) error {
			return client.Send(wire.Msg{Kind: wire.KindAffectorOrder, Order: a})
		},
	})
	adminListener, err := net.Listen("tcp", cfg.AdminAddr)
	if err != nil {
		log.Fatalf("listening on admin addr: %s", err.Error())
	}

	if cfg.User != "" || cfg.Group != "" {
		if err := runtimeEnv.DropPrivileges(cfg.User, cfg.Group); err != nil {
			log.Fatalf("dropping privileges: %s", err.Error())
		}
	}

	go func() {
		if err := client.Run(ctx, sub.Handle); err != nil {
			log.Errorf("data-store: subscriber client exited: %v", err)
		}
	}()
	adminSrv := &http.Server{Handler: adminhttp.LoggingHandler(adminRouter)}
	go func() {
		if err := adminSrv.Serve(adminListener); err != nil && err != http.ErrServerClosed {
			log.Errorf("admin http server: %v", err)
		}
	}()

	log.Infof("data-store connected to %s, persisting series under %s, admin=%s", cfg.ServerAddr, cfg.SeriesDir, cfg.AdminAddr)
	runtimeEnv.SystemdNotifiy(true, "running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()
	adminSrv.Close()
	if err := hists.PersistAll(); err != nil {
		log.Errorf("logstore: final histogram persist: %v", err)
	}
	log.Print("data-store: graceful shutdown complete")
}
