package stratifier

import (
	"sync"
	"time"

	"github.com/stratacore/poolcore/internal/config"
	"github.com/stratacore/poolcore/internal/session"
	"github.com/stratacore/poolcore/internal/shareacceptor"
	"github.com/stratacore/poolcore/internal/useragent"
	"github.com/stratacore/poolcore/internal/vardiff"
	"github.com/stratacore/poolcore/internal/workbase"
)

// Connector is the consumed collaborator that owns the actual client
// transport (§6). The Stratifier never touches a net.Conn directly.
type Connector interface {
	SendToClient(sessionID uint64, payload []byte) error
	ClientExists(sessionID uint64) bool
	DropClient(sessionID uint64)
}

// Generator is the consumed collaborator that supplies WorkBase snapshots
// and accepts candidate blocks (§6).
type Generator interface {
	SubscribeWorkbase() (<-chan *workbase.WorkBase, error)
	SubmitBlock(serializedHex string, metadata map[string]string) error
}

// Instance is one running Stratifier: the process-wide registers (§9 Design
// Notes) plus the collaborators dispatch and the watchdog act against.
type Instance struct {
	// instanceLock guards Sessions/Users/UaRegistry mutation and diff writes,
	// matching §5's instance_lock scope. WorkBase has its own internal lock
	// (workbase_rwlock) and User.AuthBackoff has its own (auth_lock, folded
	// into session.User's mutex).
	instanceLock sync.Mutex

	Sessions  *SessionTable
	Users     map[string]*session.User // keyed by username
	UaReg     *useragent.Registry
	Workbases *workbase.Store
	Acceptor  *shareacceptor.Acceptor

	Connector Connector
	Generator Generator

	Tuning config.Tuning

	nextSessionID   uint64
	lastIssuedJobID uint64

	Now func() time.Time // overridable for tests; defaults to time.Now
}

// NewInstance wires a fresh Instance from tuning configuration.
func NewInstance(tuning config.Tuning, connector Connector, generator Generator) *Instance {
	store := workbase.NewStore(time.Duration(tuning.WorkbaseGraceSec) * time.Second)
	acceptor := shareacceptor.NewAcceptor(store)
	acceptor.RejectThreshold = tuning.RejectThreshold

	return &Instance{
		Sessions:  NewSessionTable(),
		Users:     make(map[string]*session.User),
		UaReg:     useragent.NewRegistry(),
		Workbases: store,
		Acceptor:  acceptor,
		Connector: connector,
		Generator: generator,
		Tuning:    tuning,
		Now:       time.Now,
	}
}

func (in *Instance) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

// NewSession allocates a fresh Session with a monotonically increasing id
// and registers it in the table, unsubscribed, under the instance lock.
func (in *Instance) NewSession() *session.Session {
	in.instanceLock.Lock()
	defer in.instanceLock.Unlock()

	in.nextSessionID++
	s := &session.Session{ID: in.nextSessionID}
	in.Sessions.Put(s)
	return s
}

// UserFor returns the User entity for username, creating one on first sight.
func (in *Instance) UserFor(username string) *session.User {
	in.instanceLock.Lock()
	defer in.instanceLock.Unlock()

	u, ok := in.Users[username]
	if !ok {
		u = session.NewUser(uint64(len(in.Users)+1), username)
		in.Users[username] = u
	}
	return u
}

// vardiffParams snapshots the pool-wide vardiff constraints from tuning plus
// the most recently observed network difficulty.
func (in *Instance) vardiffParams(networkDiff float64) vardiff.Params {
	return vardiff.Params{
		PoolMindiff:   in.Tuning.PoolMindiff,
		WorkerMindiff: in.Tuning.WorkerMindiff,
		PoolMaxdiff:   in.Tuning.PoolMaxdiff,
		WorkerMaxdiff: in.Tuning.WorkerMaxdiff,
		NetworkDiff:   networkDiff,
	}
}

// IngestWorkbase publishes a new WorkBase snapshot: it is Put into the store
// (becoming current) and the previously current entry, if any, is retired.
// The new id is recorded as the last issued job id and returned. Sessions'
// ssdc counters are not touched, whatever wb.CleanJobs says.
func (in *Instance) IngestWorkbase(wb *workbase.WorkBase) uint64 {
	in.instanceLock.Lock()
	prevID := in.Workbases.CurrentID()
	in.instanceLock.Unlock()

	id := in.Workbases.Put(wb)
	if prevID != 0 {
		in.Workbases.Retire(prevID, in.now())
	}

	in.instanceLock.Lock()
	in.lastIssuedJobID = id
	in.instanceLock.Unlock()
	return id
}
