// Command stratifier runs one Stratum pool core process: it accepts miner
// TCP connections, peels off an optional PROXY protocol header, dispatches
// line-delimited JSON-RPC through a stratifier.Instance, and drives the
// watchdog tick on a fixed period.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/stratacore/poolcore/internal/cache"
	"github.com/stratacore/poolcore/internal/config"
	"github.com/stratacore/poolcore/internal/database"
	"github.com/stratacore/poolcore/internal/monitoring"
	"github.com/stratacore/poolcore/internal/proxyproto"
	"github.com/stratacore/poolcore/internal/session"
	"github.com/stratacore/poolcore/internal/stratifier"
	"github.com/stratacore/poolcore/internal/workbase"
)

func main() {
	log.Println("🚀 Starting Stratum pool core...")

	tuningPath := config.GetEnv("TUNING_FILE", "")
	tuning, err := config.LoadTuning(tuningPath)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}

	promClient, err := monitoring.NewPrometheusClient(config.GetEnv("PROMETHEUS_URL", ""))
	if err != nil {
		log.Fatalf("Failed to create Prometheus client: %v", err)
	}
	metrics := monitoring.NewStratifierMetrics(promClient)

	connector := newTCPConnector()
	generator := newReferenceGenerator(config.GetEnvFloat64("NETWORK_DIFF", 1))

	instance := stratifier.NewInstance(tuning, connector, generator)

	whitelist := stratifier.UaWhitelist(config.GetEnvSlice("USERAGENT_WHITELIST", nil))

	statsRepo, statsCloser := maybeDialUserStats()
	if statsCloser != nil {
		defer statsCloser()
	}

	if dup := maybeDialDuplicateCache(tuning); dup != nil {
		instance.Acceptor.External = dup
	}

	workbaseCh, err := generator.SubscribeWorkbase()
	if err != nil {
		log.Fatalf("Failed to subscribe to workbase generator: %v", err)
	}
	go pumpWorkbases(instance, connector, workbaseCh)

	port := config.GetEnv("STRATUM_PORT", "3333")
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		log.Fatalf("Failed to listen on port %s: %v", port, err)
	}
	defer listener.Close()

	done := make(chan struct{})

	go func() {
		log.Printf("✅ Stratum server listening on port %s", port)
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-done:
					return
				default:
					log.Printf("Accept error: %v", err)
					continue
				}
			}
			go handleConnection(conn, instance, connector, whitelist, metrics)
		}
	}()

	watchdogDone := make(chan struct{})
	go runWatchdog(instance, tuning, generator.networkDiff, watchdogDone)

	if statsRepo != nil {
		go runStatsPersistence(instance, statsRepo, watchdogDone)
	}

	metricsPort := config.GetEnv("METRICS_PORT", "")
	if metricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promClient.GetHandler())
		go func() {
			log.Printf("✅ Metrics endpoint listening on port %s", metricsPort)
			if err := http.ListenAndServe(fmt.Sprintf(":%s", metricsPort), mux); err != nil {
				log.Printf("⚠️ Metrics server stopped: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down stratum server...")
	close(done)
	close(watchdogDone)
	log.Println("✅ Stratum server exited gracefully")
}

// handleConnection owns one miner socket end to end: it peeks an optional
// PROXY header, registers a Session, and drives the scan/dispatch loop until
// the peer disconnects or the Instance asks to drop it.
func handleConnection(conn net.Conn, instance *stratifier.Instance, connector *tcpConnector, whitelist stratifier.UaWhitelist, metrics *monitoring.StratifierMetrics) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	peekBuf := make([]byte, 512)
	n, err := conn.Read(peekBuf)
	if err != nil {
		return
	}
	conn.SetReadDeadline(time.Time{})
	peekBuf = peekBuf[:n]

	var source io.Reader = conn
	result := proxyproto.Peek(peekBuf)
	switch {
	case result.Discard > 0 && result.Discard <= len(peekBuf):
		if result.Parsed {
			log.Printf("PROXY header: real peer %s:%d", result.Address, result.Port)
		}
		source = io.MultiReader(bytes.NewReader(peekBuf[result.Discard:]), conn)
	default:
		// No recognizable header, or a header fragmented across more than one
		// read: treat the bytes already read as the start of the RPC stream.
		source = io.MultiReader(bytes.NewReader(peekBuf), conn)
	}
	reader := bufio.NewReader(source)

	s := instance.NewSession()
	s.AddRef()
	connector.register(s.ID, conn)
	defer func() {
		s.Dropped = true
		connector.unregister(s.ID)
		metrics.ClientDisconnect()
	}()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, err := stratifier.ParseMessage(line)
		if err != nil {
			continue
		}

		start := time.Now()
		outcome := instance.Dispatch(s.ID, msg, time.Now(), whitelist)
		if msg.Method == "mining.submit" {
			recordSubmitMetric(metrics, outcome, time.Since(start))
		}

		for _, reply := range outcome.Replies {
			payload, err := stratifier.Marshal(reply)
			if err != nil {
				continue
			}
			if err := connector.SendToClient(s.ID, payload); err != nil {
				return
			}
		}

		if outcome.Drop {
			return
		}
	}
}

func recordSubmitMetric(metrics *monitoring.StratifierMetrics, outcome stratifier.Outcome, elapsed time.Duration) {
	rejected := false
	for _, r := range outcome.Replies {
		if resp, ok := r.(*stratifier.Response); ok && resp.Error != nil {
			rejected = true
		}
	}
	if rejected {
		metrics.ShareRejected(elapsed)
	} else {
		metrics.ShareAccepted(elapsed)
	}
}

// runWatchdog drives Instance.Tick on the configured cadence until stopped.
func runWatchdog(instance *stratifier.Instance, tuning config.Tuning, networkDiff float64, stop <-chan struct{}) {
	interval := time.Duration(tuning.WatchdogTickSec) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			report := instance.Tick(now, networkDiff)
			if report.Unlinked > 0 || report.DropsSent > 0 {
				log.Printf("watchdog: unlinked=%d drops_sent=%d idle_decayed=%d marked_idle=%d",
					report.Unlinked, report.DropsSent, report.IdleDecayed, report.MarkedIdle)
			}
		}
	}
}

// runStatsPersistence periodically snapshots every User that has at least
// one session in the session table (once per User) into the
// user_stats table. It shares the watchdog's stop channel since both are
// process-lifetime background loops.
func runStatsPersistence(instance *stratifier.Instance, repo *database.UserStatsRepository, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := context.Background()
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Printf("⚠️ user_stats schema setup failed: %v", err)
		return
	}

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			var recs []database.UserStatsRecord
			seen := make(map[string]bool)
			instance.Sessions.ForEach(func(s *session.Session) bool {
				if s.User == nil || seen[s.User.Username] {
					return true
				}
				seen[s.User.Username] = true
				norm := s.Useragent
				if s.Worker != nil {
					norm = s.Worker.NormUseragent
				}
				recs = append(recs, database.UserStatsRecord{
					Username:      s.User.Username,
					WorkerCount:   len(s.User.Workers),
					Dsps1:         s.User.Rates.Dsps1,
					Dsps5:         s.User.Rates.Dsps5,
					Dsps60:        s.User.Rates.Dsps60,
					Dsps1440:      s.User.Rates.Dsps1440,
					BestDiff:      s.User.BestDiff,
					BestEver:      s.User.BestEver,
					LastUseragent: s.Useragent,
					NormUseragent: norm,
					RecordedAt:    now,
				})
				return true
			})
			if n, err := repo.RecordBatch(ctx, recs); err != nil {
				log.Printf("⚠️ failed to record user stats batch (%d rows): %v", len(recs), err)
			} else if n > 0 {
				log.Printf("recorded user stats batch: %d rows", n)
			}
		}
	}
}

// pumpWorkbases ingests every snapshot the Generator publishes and pushes a
// mining.notify to every subscribed session.
func pumpWorkbases(instance *stratifier.Instance, connector *tcpConnector, ch <-chan *workbase.WorkBase) {
	for wb := range ch {
		id := instance.IngestWorkbase(wb)
		notify := stratifier.NewNotifyNotification(
			fmt.Sprintf("%d", id),
			hex.EncodeToString(wb.PrevHashLE[:]),
			hex.EncodeToString(wb.Coinbase1),
			hex.EncodeToString(wb.Coinbase2),
			merkleBranchHexes(wb),
			hex.EncodeToString(wb.VersionLE[:]),
			hex.EncodeToString(wb.NBitsLE[:]),
			fmt.Sprintf("%08x", wb.Curtime),
			wb.CleanJobs,
		)
		payload, err := stratifier.Marshal(notify)
		if err != nil {
			continue
		}
		instance.Sessions.ForEach(func(s *session.Session) bool {
			if s.Subscribed {
				_ = connector.SendToClient(s.ID, payload)
			}
			return true
		})
	}
}

func merkleBranchHexes(wb *workbase.WorkBase) []string {
	out := make([]string, len(wb.MerkleBranches))
	for i, b := range wb.MerkleBranches {
		out[i] = hex.EncodeToString(b[:])
	}
	return out
}

// tcpConnector implements stratifier.Connector against real net.Conn sockets.
type tcpConnector struct {
	mu    sync.Mutex
	conns map[uint64]net.Conn
}

func newTCPConnector() *tcpConnector {
	return &tcpConnector{conns: make(map[uint64]net.Conn)}
}

func (c *tcpConnector) register(sessionID uint64, conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[sessionID] = conn
}

func (c *tcpConnector) unregister(sessionID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, sessionID)
}

func (c *tcpConnector) SendToClient(sessionID uint64, payload []byte) error {
	c.mu.Lock()
	conn, ok := c.conns[sessionID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no connection for session %d", sessionID)
	}
	_, err := conn.Write(append(payload, '\n'))
	return err
}

func (c *tcpConnector) ClientExists(sessionID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.conns[sessionID]
	return ok
}

func (c *tcpConnector) DropClient(sessionID uint64) {
	c.mu.Lock()
	conn, ok := c.conns[sessionID]
	if ok {
		delete(c.conns, sessionID)
	}
	c.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// referenceGenerator is a stand-in for a real blockchain RPC poller: it
// publishes a synthetic WorkBase on a fixed period so the rest of the
// pipeline (vardiff, share acceptance, watchdog) can run without a live
// node. A real deployment replaces this with a getblocktemplate poller.
type referenceGenerator struct {
	networkDiff float64
	ch          chan *workbase.WorkBase
}

func newReferenceGenerator(networkDiff float64) *referenceGenerator {
	return &referenceGenerator{
		networkDiff: networkDiff,
		ch:          make(chan *workbase.WorkBase, 1),
	}
}

func (g *referenceGenerator) SubscribeWorkbase() (<-chan *workbase.WorkBase, error) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for now := range ticker.C {
			g.ch <- g.snapshot(now)
		}
	}()
	g.ch <- g.snapshot(time.Now())
	return g.ch, nil
}

func (g *referenceGenerator) snapshot(now time.Time) *workbase.WorkBase {
	return &workbase.WorkBase{
		Coinbase1: []byte{0x01, 0x02, 0x03, 0x04},
		Coinbase2: []byte{0x05, 0x06, 0x07, 0x08},
		Curtime:   now.Unix(),
		CleanJobs: true,
	}
}

func (g *referenceGenerator) SubmitBlock(serializedHex string, metadata map[string]string) error {
	log.Printf("candidate block found: job_id=%s len=%d", metadata["job_id"], len(serializedHex)/2)
	return nil
}

// maybeDialUserStats wires a Postgres-backed UserStatsRepository if
// DATABASE_URL-shaped environment variables are present; it is optional and
// the process runs fine without persistence.
func maybeDialUserStats() (*database.UserStatsRepository, func()) {
	host := config.GetEnv("DB_HOST", "")
	if host == "" {
		return nil, nil
	}

	dbCfg := &database.Config{
		Host:     host,
		Port:     config.GetEnvInt("DB_PORT", 5432),
		Database: config.GetEnv("DB_NAME", "poolcore"),
		Username: config.GetEnv("DB_USER", "poolcore"),
		Password: config.GetEnv("DB_PASSWORD", ""),
		SSLMode:  config.GetEnv("DB_SSLMODE", "disable"),
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host, dbCfg.Port, dbCfg.Username, dbCfg.Password, dbCfg.Database, dbCfg.SSLMode)

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		log.Printf("⚠️ user stats database unavailable: %v", err)
		return nil, nil
	}
	log.Println("✅ Connected to PostgreSQL for user stats persistence")
	return database.NewUserStatsRepository(db), func() { db.Close() }
}

// maybeDialDuplicateCache wires a Redis-backed secondary duplicate checker
// when REDIS_ADDR is set, letting multiple Stratifier processes share one
// duplicate-share view.
func maybeDialDuplicateCache(tuning config.Tuning) *duplicateCheckerAdapter {
	addr := config.GetEnv("REDIS_ADDR", "")
	if addr == "" {
		return nil
	}

	cacheCfg := cache.DefaultCacheConfig()
	cacheCfg.RedisAddr = addr
	cacheCfg.RedisPassword = config.GetEnv("REDIS_PASSWORD", "")
	cacheCfg.RedisDB = config.GetEnvInt("REDIS_DB", 0)

	redisCache, err := cache.NewRedisCache(cacheCfg)
	if err != nil {
		log.Printf("⚠️ duplicate-share cache unavailable: %v", err)
		return nil
	}
	log.Println("✅ Connected to Redis for duplicate-share cache")

	if tuning.WorkbaseGraceSec > 0 {
		cacheCfg.DuplicateShareTTL = time.Duration(tuning.WorkbaseGraceSec) * time.Second * 2
	}
	return &duplicateCheckerAdapter{cache: cache.NewDuplicateShareCache(redisCache, cacheCfg.DuplicateShareTTL)}
}

// duplicateCheckerAdapter supplies the background context the
// shareacceptor.DuplicateChecker interface does not carry.
type duplicateCheckerAdapter struct {
	cache *cache.DuplicateShareCache
}

func (a *duplicateCheckerAdapter) CheckAndRecord(jobID, sessionID uint64, nonce2, ntime, nonce string) (bool, error) {
	return a.cache.CheckAndRecord(context.Background(), jobID, sessionID, nonce2, ntime, nonce)
}
