package stratifier

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stratacore/poolcore/internal/poolclock"
	"github.com/stratacore/poolcore/internal/poolerrors"
	"github.com/stratacore/poolcore/internal/session"
	"github.com/stratacore/poolcore/internal/shareacceptor"
	"github.com/stratacore/poolcore/internal/useragent"
	"github.com/stratacore/poolcore/internal/vardiff"
)

// Extranonce2Size is the byte width of the miner-chosen portion of the
// coinbase extranonce, advertised in every mining.subscribe reply.
const Extranonce2Size = 4

// UaWhitelist holds optional prefix patterns; an empty list allows every
// user agent (§6).
type UaWhitelist []string

// Allows implements the §6 safe-prefix-compare rule: a nonempty pattern
// never matches an empty client useragent, and an empty whitelist allows
// everything.
func (w UaWhitelist) Allows(clientUA string) bool {
	if len(w) == 0 {
		return true
	}
	if clientUA == "" {
		return false
	}
	for _, pattern := range w {
		if strings.HasPrefix(clientUA, pattern) {
			return true
		}
	}
	return false
}

// Outcome is one dispatched message's result: zero or more payloads to send
// back to the client, and whether the session should now be dropped.
type Outcome struct {
	Replies []interface{} // *Response and/or *Notification values, in send order
	Drop    bool
}

func reply(v interface{}) Outcome { return Outcome{Replies: []interface{}{v}} }

// Dispatch routes one parsed JSON-RPC message for sessionID through the
// admission check and the appropriate handler, mutating Instance state under
// the instance lock.
func (in *Instance) Dispatch(sessionID uint64, msg *Message, now time.Time, whitelist UaWhitelist) Outcome {
	s, ok := in.Sessions.Get(sessionID)
	if !ok {
		return Outcome{Drop: true}
	}

	action := session.Admit(s, msg.Method)
	switch action {
	case session.AdmitDrop:
		return Outcome{Drop: true}
	case session.AdmitRejectStale:
		return reply(NewErrorResponse(msg.ID, 21, "Stale"))
	}

	switch msg.Method {
	case "mining.subscribe":
		return in.handleSubscribe(s, msg, whitelist)
	case "mining.authorize":
		return in.handleAuthorize(s, msg, now)
	case "mining.submit":
		return in.handleSubmit(s, msg, now)
	case "mining.configure":
		return in.handleConfigure(s, msg)
	case "mining.suggest_difficulty":
		return in.handleSuggestDifficulty(s, msg)
	default:
		return Outcome{Drop: true}
	}
}

func paramString(params []interface{}, i int) (string, bool) {
	if i >= len(params) {
		return "", false
	}
	v, ok := params[i].(string)
	return v, ok
}

func (in *Instance) handleSubscribe(s *session.Session, msg *Message, whitelist UaWhitelist) Outcome {
	ua, _ := paramString(msg.Params, 0)
	if !whitelist.Allows(ua) {
		return reply(NewErrorResponse(msg.ID, 25, "Unauthorized useragent"))
	}

	extranonce1 := randomBytes(4)
	s.Subscribe(extranonce1)
	s.Useragent = ua

	class := vardiff.ClassifyUseragent(ua)
	initial := vardiff.InitialDiff(class)
	if class == vardiff.HardwareUnknown && in.Tuning.Startdiff > 0 {
		initial = in.Tuning.Startdiff
	}
	s.Diff = initial
	s.OldDiff = initial

	in.UaReg.Add(ua)

	subID := fmt.Sprintf("%x", s.ID)
	resp := NewSubscribeResponse(msg.ID, subID, hex.EncodeToString(extranonce1), Extranonce2Size)
	diffNotify := NewDifficultyNotification(s.Diff)
	return Outcome{Replies: []interface{}{resp, diffNotify}}
}

func (in *Instance) handleAuthorize(s *session.Session, msg *Message, now time.Time) Outcome {
	workername, _ := paramString(msg.Params, 0)
	password, _ := paramString(msg.Params, 1)
	if workername == "" {
		return reply(NewErrorResponse(msg.ID, 24, "Invalid worker name"))
	}

	username := workername
	if idx := strings.IndexByte(workername, '.'); idx >= 0 {
		username = workername[:idx]
	}
	user := in.UserFor(username)

	if user.InBackoff(now) {
		return reply(NewAuthorizeResponse(msg.ID, false))
	}

	authorized := in.authenticate(username, password)
	if !authorized {
		user.MarkAuthFailure(now, in.Tuning.AuthBackoffCap)
		s.Authorised = false
		return reply(NewAuthorizeResponse(msg.ID, false))
	}
	user.MarkAuthSuccess(now)

	worker := user.FindWorker(workername)
	if worker == nil {
		worker = session.NewWorker(workername, now)
		user.AddWorker(worker)
	}
	worker.Attach(now)
	worker.Useragent = s.Useragent
	worker.SetNormUseragent(useragent.WorkerUA(worker.InstanceCount, s.Useragent, worker.NormUseragent))

	s.Authorised = true
	s.Workername = workername
	s.User = user
	s.Worker = worker
	user.AttachSession(s)

	if mindiff, ok := session.ParsePasswordDiff(password, in.Tuning.WorkerMindiff, in.Tuning.WorkerMaxdiff); ok {
		currentID := in.Workbases.CurrentID()
		vardiff.ApplyPasswordDiff(s, mindiff, currentID)
	}

	diffNotify := NewDifficultyNotification(s.Diff)
	return Outcome{Replies: []interface{}{NewAuthorizeResponse(msg.ID, true), diffNotify}}
}

// authenticate is a placeholder trust boundary: the core's Non-goals exclude
// a payout/credential backend, so every syntactically valid worker name
// authorizes. A real deployment wires this to its own user database.
func (in *Instance) authenticate(username, password string) bool {
	return username != ""
}

func (in *Instance) handleSubmit(s *session.Session, msg *Message, now time.Time) Outcome {
	p, err := parseSubmitParams(msg.Params)
	if err != nil {
		return reply(NewErrorResponse(msg.ID, 20, err.Error()))
	}

	var clientMask [4]byte
	res := in.Acceptor.Submit(s, p, now, clientMask)

	if res.Err != nil {
		code, text := submitErrorCode(res.Err)
		out := reply(NewErrorResponse(msg.ID, code, text))
		if s.RejectRun >= 2 {
			out.Drop = true
		}
		return out
	}

	if s.Worker != nil {
		s.Worker.RecordShare(poolclock.DecayTime, res.SessionDiff, now)
		in.UaReg.UpdateBestDiff(s.Useragent, res.ShareDiff)
		in.UaReg.RecordShareDsps5(s.Useragent, s.Rates.Dsps5)
	}
	if s.User != nil {
		s.User.RecordShare(poolclock.DecayTime, res.SessionDiff, now)
	}

	if res.IsCandidateBlock && in.Generator != nil {
		_ = in.Generator.SubmitBlock(hex.EncodeToString(res.CoinbaseBytes), map[string]string{
			"job_id": fmt.Sprintf("%d", s.WorkbaseID),
		})
	}

	return reply(NewSubmitResponse(msg.ID))
}

func submitErrorCode(err error) (int, string) {
	switch {
	case errorsIs(err, poolerrors.ErrStale):
		return 21, "Stale"
	case errorsIs(err, poolerrors.ErrDuplicate):
		return 22, "Duplicate"
	case errorsIs(err, poolerrors.ErrInvalidNtime):
		return 23, "Invalid ntime"
	case errorsIs(err, poolerrors.ErrLowDifficulty):
		return 23, "Low difficulty"
	case errorsIs(err, poolerrors.ErrAuthRace):
		return 21, "Stale"
	default:
		return 20, "Invalid params"
	}
}

func parseSubmitParams(params []interface{}) (shareacceptor.SubmitParams, error) {
	if len(params) < 5 {
		return shareacceptor.SubmitParams{}, fmt.Errorf("mining.submit requires 5 params")
	}
	get := func(i int) string {
		v, _ := paramString(params, i)
		return v
	}
	p := shareacceptor.SubmitParams{
		Workername: get(0),
		JobID:      get(1),
		Nonce2Hex:  get(2),
		NtimeHex:   get(3),
		NonceHex:   get(4),
	}
	if len(params) > 5 {
		if mask, ok := paramString(params, 5); ok && mask != "" {
			p.VersionMaskHex = mask
			p.HasVersionMask = true
		}
	}
	return p, nil
}

func (in *Instance) handleConfigure(s *session.Session, msg *Message) Outcome {
	// No BIP-310 extension is actually supported; echo false for every
	// requested extension name, matching a pool that advertises none.
	agreed := map[string]interface{}{}
	if len(msg.Params) > 0 {
		if names, ok := msg.Params[0].([]interface{}); ok {
			for _, n := range names {
				if name, ok := n.(string); ok {
					agreed[name] = false
				}
			}
		}
	}
	return reply(NewConfigureResponse(msg.ID, agreed))
}

func (in *Instance) handleSuggestDifficulty(s *session.Session, msg *Message) Outcome {
	var requested float64
	if len(msg.Params) > 0 {
		switch v := msg.Params[0].(type) {
		case float64:
			requested = v
		case json.Number:
			f, _ := v.Float64()
			requested = f
		}
	}

	lastIssued := in.Workbases.CurrentID()
	if vardiff.SuggestDifficulty(s, requested, in.Tuning.WorkerMindiff, lastIssued) {
		return reply(NewDifficultyNotification(s.Diff))
	}
	return Outcome{}
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

func errorsIs(err, target error) bool {
	return err == target
}
