package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/jera/featureflag"
	jerahttp "github.com/aukilabs/jera/http"
	"github.com/aukilabs/jera/models"
	"github.com/aukilabs/jera/smoketest"
	"github.com/aukilabs/jera/terrain"
	"github.com/aukilabs/jera/upload"
	jwebsocket "github.com/aukilabs/jera/websocket"
	"github.com/aukilabs/jera/world"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Jera version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "jera_info",
		Help:        "Jera information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"JERA_ADDR"                  help:"Listening address for viewer connections and the query API."`
	AdminAddr          string        `cli:""        env:"JERA_ADMIN_ADDR"            help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"JERA_PUBLIC_ENDPOINT"       help:"The public endpoint where this Jera server is reachable."`
	LogLevel           string        `cli:""        env:"JERA_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"JERA_LOG_INDENT"            help:"Indent logs."`
	RenderDistance     int           `cli:""        env:"JERA_RENDER_DISTANCE"       help:"The box radius, in chunks, kept in memory around the viewpoint (0-16)."`
	Seed               int64         `cli:""        env:"JERA_SEED"                  help:"The terrain generation seed."`
	Workers            int           `cli:",hidden" env:"JERA_WORKERS"               help:"The maximum number of chunks generated in parallel."`
	ViewerIdleTimeout  time.Duration `cli:",hidden" env:"JERA_VIEWER_IDLE_TIMEOUT"   help:"Time until an idle viewer will be disconnected."`
	WorldStateInterval time.Duration `cli:",hidden" env:"JERA_WORLD_STATE_INTERVAL"  help:"Viewer world state (heartbeat) message interval."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"JERA_LOG_SUMMARY_INTERVAL"  help:"The duration between each log summary by connection."`
	UploadInterval     time.Duration `cli:",hidden" env:"JERA_UPLOAD_INTERVAL"       help:"The duration between each chunk packing pass."`
	Events             eventsConfig  `cli:",hidden" env:"-"                          help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"JERA_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                          help:"Show version."`
	Help               bool          `cli:""        env:"-"                          help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"JERA_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"JERA_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"JERA_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"JERA_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		RenderDistance:     world.DefaultRenderDistance,
		Workers:            runtime.NumCPU(),
		ViewerIdleTimeout:  time.Minute * 5,
		WorldStateInterval: time.Second * 5,
		LogSummaryInterval: time.Minute,
		UploadInterval:     time.Second,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Jera voxel world server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "jera",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	flags := featureflag.New(conf.FeatureFlags)
	flags.IfSet(featureflag.FlagSequentialGeneration, func() {
		conf.Workers = 1
	})

	w := world.New(world.Config{
		Generator:      terrain.New(conf.Seed),
		RenderDistance: conf.RenderDistance,
		Workers:        conf.Workers,
	})

	packer := &upload.Packer{
		World:    w,
		Interval: conf.UploadInterval,
	}
	flags.IfNotSet(featureflag.FlagDisableChunkUpload, func() {
		packer.HandleUploads(ctx)
	})

	var ready atomic.Bool
	go func() {
		start := time.Now()
		if err := w.UpdateAround(ctx, r3.Vector{}); err != nil {
			logs.Warn(errors.New("generating initial chunks failed").Wrap(err))
			return
		}
		packer.Notify()
		ready.Store(true)

		logs.WithTag("chunks", w.ChunkCount()).
			WithTag("duration", time.Since(start)).
			Info("initial chunks generated")
	}()
	readinessCheck := func() bool {
		return ready.Load() && w.ChunkCount() != 0
	}

	var service http.ServeMux

	service.Handle("/health", jerahttp.HandleWithCORS(http.HandlerFunc(jerahttp.HandleHealthCheck)))
	service.Handle("/ready", jerahttp.HandleWithCORS(jerahttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", jerahttp.HandleWithCORS(jerahttp.HandleVersion(version)))

	service.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		World: w,
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			logs.WithTag("rays", res.Rays).
				WithTag("chunks", res.Chunks).
				WithTag("hits", res.Hits).
				WithTag("mismatches", res.Mismatches).
				WithTag("max_distance_error", res.MaxDistanceError).
				WithTag("duration", res.Duration).
				Info("smoke test done")
			return nil
		},
	}))

	api := jerahttp.API{
		World:        w,
		Packer:       packer,
		FeatureFlags: flags,
	}
	api.Register(&service)

	viewers := models.ViewerStore{}

	service.Handle("/", jerahttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var vh jwebsocket.Handler = &jwebsocket.ViewerHandler{
				World:                    w,
				Viewers:                  &viewers,
				Packer:                   packer,
				FeatureFlags:             flags,
				ViewerWorldStateInterval: conf.WorldStateInterval,
				ViewerIdleTimeout:        conf.ViewerIdleTimeout,
			}
			h := jwebsocket.HandlerWithLogs(vh, conf.LogSummaryInterval)
			h = jwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			jwebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", jerahttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", jerahttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("render_distance", w.RenderDistance()).
		WithTag("workers", conf.Workers).
		WithTag("seed", conf.Seed).
		WithTag("feature_flags", flags.List()).
		Info("starting jera server")

	jerahttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			jerahttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if conf.RenderDistance < world.MinRenderDistance || conf.RenderDistance > world.MaxRenderDistance {
		return errors.Newf("render distance must be between %d and %d", world.MinRenderDistance, world.MaxRenderDistance).
			WithTag("render_distance", conf.RenderDistance)
	}

	if conf.Workers <= 0 {
		return errors.New("workers must be positive").
			WithTag("workers", conf.Workers)
	}

	return nil
}
