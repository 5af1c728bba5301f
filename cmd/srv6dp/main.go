// Command srv6dp is the demo/simulation entrypoint for the SRv6<->GTP-U
// data-plane core: it loads configuration, builds the local-SID/SR
// policy table and the four transform engines plus GSO, starts one
// scheduler per engine over an in-process traffic generator, and serves
// the admin/metrics HTTP surface. It is not the host
// vector-packet-processing runtime — this binary
// exists to exercise the engines end to end, the way
// nf/upf/cmd/main.go's bootstrap sequence (flags -> logger -> config ->
// components -> metrics server -> signal handling -> graceful shutdown)
// exercises the UPF.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/admin"
	"github.com/your-org/srv6-gtp-dataplane/internal/config"
	"github.com/your-org/srv6-gtp-dataplane/internal/control"
	"github.com/your-org/srv6-gtp-dataplane/internal/engine"
	"github.com/your-org/srv6-gtp-dataplane/internal/scheduler"
	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/telemetry/clickhouse"
	"github.com/your-org/srv6-gtp-dataplane/internal/telemetry/metrics"
	"github.com/your-org/srv6-gtp-dataplane/internal/telemetry/trace"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "cmd/srv6dp/config/srv6dp.yaml", "Path to configuration file")
	flag.Parse()

	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting srv6dp", zap.String("version", Version), zap.String("build_time", BuildTime))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	table := srv6.NewTable()
	plane := control.NewPlane(table, logger)
	if err := plane.LoadFromConfig(cfg.Table); err != nil {
		logger.Fatal("failed to seed tables from config", zap.Error(err))
	}
	seedDemoLocalSIDs(plane)
	logger.Info("tables seeded",
		zap.Int("local_sids", table.LenLocalSIDs()),
		zap.Int("policies", table.LenPolicies()))

	encapSource, err := parseEncapSource(cfg.Table.EncapSource)
	if err != nil {
		logger.Fatal("invalid table.encap_source", zap.Error(err))
	}

	gtp4e := &engine.GTP4E{Table: table, Template: engine.NewGTP4ETemplate()}
	gtp6e := &engine.GTP6E{Table: table, Template: engine.NewGTP6ETemplate()}
	gtp6d := &engine.GTP6D{Table: table, Template: engine.NewGTP6DTemplate()}
	gtp6ddi := &engine.GTP6DDI{Table: table, Template: engine.NewGTP6DDITemplate(encapSource)}
	gso := &engine.GSO{BufferDataCap: cfg.GSO.BufferDataCap}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var traceSink *trace.ClickHouseSink
	var traceEmitter engine.TraceEmitter
	if cfg.Telemetry.Enabled {
		client, err := clickhouse.Open(clickhouse.Options{
			Addresses:   cfg.Telemetry.ClickHouseDSN,
			Database:    cfg.Telemetry.Database,
			Username:    cfg.Telemetry.Username,
			Password:    cfg.Telemetry.Password,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			logger.Error("failed to open clickhouse trace sink, tracing disabled", zap.Error(err))
		} else {
			traceSink = trace.NewClickHouseSink(client, logger, cfg.Telemetry.BatchSize, cfg.Telemetry.FlushInterval())
			traceEmitter = traceSink
			defer traceSink.Close()
		}
	}

	adapters := []*engine.FrameAdapter{
		{EngineName: "GTP4.E", Rewriter: gtp4e, Sink: metrics.EngineSink{EngineName: "GTP4.E"}, Trace: traceEmitter},
		{EngineName: "GTP6.E", Rewriter: gtp6e, Sink: metrics.EngineSink{EngineName: "GTP6.E"}, Trace: traceEmitter},
		{EngineName: "GTP6.D", Rewriter: gtp6d, Sink: metrics.EngineSink{EngineName: "GTP6.D"}, Trace: traceEmitter},
		{EngineName: "GTP6.D.DI", Rewriter: gtp6ddi, Sink: metrics.EngineSink{EngineName: "GTP6.D.DI"}, Trace: traceEmitter},
	}
	gsoAdapter := &engine.GSOFrameAdapter{GSO: gso, Alloc: simpleAllocator{}, ErrSink: metrics.GSOSink{SwIfIndex: 0}}

	schedulers := make([]*scheduler.Scheduler, 0, len(adapters)+1)
	for _, a := range adapters {
		frames := make(chan *scheduler.Frame, 4)
		sched := scheduler.New(a, cfg.Engine.NumWorkers, frames, loggingSink(logger, a.Name()), logger)
		schedulers = append(schedulers, sched)
		go sched.Run(ctx)
		frames <- demoFrame(a.Name(), cfg.Engine.Headroom)
		close(frames)
	}
	gsoFrames := make(chan *scheduler.Frame, 1)
	gsoSched := scheduler.New(gsoAdapter, 1, gsoFrames, loggingSink(logger, "GSO"), logger)
	schedulers = append(schedulers, gsoSched)
	go gsoSched.Run(ctx)
	gsoFrames <- demoGSOFrame(cfg.Engine.Headroom)
	close(gsoFrames)

	adminServer := admin.NewServer(cfg.Metrics.Addr, table.LenLocalSIDs, table.LenPolicies, logger)
	adminErrCh := make(chan error, 1)
	if cfg.Metrics.Enabled {
		go func() {
			if err := adminServer.Start(); err != nil {
				adminErrCh <- err
			}
		}()
		logger.Info("admin server listening", zap.String("addr", cfg.Metrics.Addr))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-adminErrCh:
		logger.Error("admin server error", zap.Error(err))
	}

	logger.Info("shutting down srv6dp")
	cancel()
	for _, s := range schedulers {
		s.Stop()
	}
	_ = adminServer.Stop()
	logger.Info("srv6dp shutdown complete")
}

func parseEncapSource(s string) ([16]byte, error) {
	var out [16]byte
	if s == "" {
		return out, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return out, os.ErrInvalid
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return out, os.ErrInvalid
	}
	copy(out[:], ip16)
	return out, nil
}

// loggingSink logs verdict counts per dispatched frame; a real
// deployment's Sink would enqueue buffers to the next downstream node
// instead.
func loggingSink(logger *zap.Logger, name string) func(*scheduler.Frame, []int) {
	l := logger.Named("sink").With(zap.String("engine", name))
	return func(f *scheduler.Frame, verdicts []int) {
		l.Info("frame processed", zap.Int("buffers", len(f.Buffers)), zap.Ints("verdicts", verdicts))
	}
}

// simpleAllocator is a trivial engine.BufferAllocator backing the demo
// GSO scheduler: it allocates plain headroom-padded buffers with no
// pooling, standing in for the host's real scatter-gather allocator.
type simpleAllocator struct{}

func (simpleAllocator) Alloc(headroom, dataCap int) *buffer.Buffer {
	return buffer.New(headroom, make([]byte, dataCap))
}

func (simpleAllocator) Free(*buffer.Buffer) {}

func initLogger() *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
