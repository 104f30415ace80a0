package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/net/context"

	"github.com/grussorusso/digestledge/internal/api"
	"github.com/grussorusso/digestledge/internal/config"
	"github.com/grussorusso/digestledge/internal/dispatcher"
	"github.com/grussorusso/digestledge/internal/healthcheck"
	"github.com/grussorusso/digestledge/internal/ledger"
	"github.com/grussorusso/digestledge/internal/logging"
	"github.com/grussorusso/digestledge/internal/metrics"
	"github.com/grussorusso/digestledge/internal/objects"
	"github.com/grussorusso/digestledge/internal/provisioning"
	"github.com/grussorusso/digestledge/internal/reaper"
	"github.com/grussorusso/digestledge/internal/scheduling"
	"github.com/grussorusso/digestledge/internal/sender"
	"github.com/grussorusso/digestledge/utils"
)

func createLedger(tagging provisioning.Tagging, logger *zap.Logger) ledger.Store {
	if !config.GetBool(config.LEDGER_ETCD, false) {
		logger.Warn("termination ledger kept in memory: instances outliving this process will not be reaped")
		return ledger.NewMemoryStore()
	}
	etcdClient, err := utils.GetEtcdClient(config.GetString(config.ETCD_ADDRESS, "localhost:2379"))
	if err != nil {
		logger.Fatal("etcd unavailable", zap.Error(err))
	}
	// one namespace per dispatcher host, so that a restarted process finds its own entries
	return ledger.NewEtcdStore(etcdClient, tagging.Name())
}

// registerTerminationHandler returns a channel closed once the shutdown sequence is over.
func registerTerminationHandler(e *echo.Echo, d *dispatcher.Dispatcher, r *reaper.Reaper, s *scheduling.Scheduler,
	logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		logger.Info("Terminating...", zap.Stringer("signal", sig))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errShutdown := e.Shutdown(ctx)

		// dispatches still waiting on their instance will not release it before exit
		if n := d.TerminateActive(); n > 0 {
			logger.Warn("terminated in-flight instances", zap.Int("count", n))
		}
		r.Stop()
		// owed terminations are issued now rather than lost with the process
		s.Shutdown(true)

		if err := utils.ReturnNonNilErr(errShutdown, utils.CloseEtcdClient()); err != nil {
			logger.Error("unclean shutdown", zap.Error(err))
		}
		logger.Sync()
		close(done)
	}()
	return done
}

func main() {
	configFileName := ""
	if len(os.Args) > 1 {
		configFileName = os.Args[1]
	}
	config.ReadConfiguration(configFileName)

	logger, err := logging.New(config.GetString(config.LOG_LEVEL, "info"), config.GetBool(config.LOG_DEVELOPMENT, false))
	if err != nil {
		log.Fatal(err)
	}

	conf, err := config.LoadDispatcherConf()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger.Info("Configured dispatcher", zap.String("service", conf.ServiceName),
		zap.Int64("threshold", conf.SizeThreshold), zap.String("baseline", conf.BaselineDomain))

	ec2Client, err := provisioning.NewEC2Client(context.Background(), conf.Region)
	if err != nil {
		logger.Fatal("could not configure the EC2 client", zap.Error(err))
	}
	tagging := provisioning.Tagging{
		ServiceName:  conf.ServiceName,
		HostIdentity: utils.HostIdentity(),
		Owner:        conf.Owner,
	}
	prov := provisioning.NewProvisioner(ec2Client, provisioning.Template{
		ImageID:        conf.ImageID,
		InstanceType:   conf.InstanceType,
		KeyName:        conf.KeyName,
		SecurityGroups: conf.SecurityGroups,
		IAMProfile:     conf.IAMProfile,
	}, tagging, logger)

	store := createLedger(tagging, logger)
	scheduler := scheduling.NewScheduler(logger)

	d := dispatcher.New(conf, dispatcher.Dependencies{
		Sizes:       objects.NewSizeProbe(conf.ServiceContextUrl(conf.BaselineDomain)+dispatcher.ObjectsPath, nil),
		Provisioner: prov,
		Health:      healthcheck.NewChecker(logger),
		Sender:      sender.NewSender(nil),
		Scheduler:   scheduler,
		Ledger:      store,
		Logger:      logger,
	})

	r := reaper.New(store, prov, time.Duration(config.GetInt(config.REAPER_INTERVAL, 60))*time.Second, logger)
	r.InUse = d.InUse
	r.Start()

	if config.GetBool(config.METRICS_ENABLED, false) {
		go metrics.Init(config.GetInt(config.METRICS_PORT, 2112), logger)
	}

	e := echo.New()

	// Register a signal handler to cleanup things on termination
	done := registerTerminationHandler(e, d, r, scheduler, logger)

	api.StartAPIServer(e, &api.Handlers{Executor: d, Logger: logger}, config.GetInt(config.API_PORT, 1323))
	<-done
}
