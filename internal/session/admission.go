package session

// AdmitAction is the outcome of applying the §4.6 admission policy to an
// inbound JSON-RPC method while a session is not yet authorised.
type AdmitAction int

const (
	// AdmitProceed means the method should be handled normally.
	AdmitProceed AdmitAction = iota
	// AdmitRejectStale means the method is mining.submit arriving on a
	// subscribed session before authorization; reply Stale and keep the
	// session.
	AdmitRejectStale
	// AdmitDrop means the method is not allowed in the session's current
	// state and the session must be dropped.
	AdmitDrop
)

// Admit implements §4.6's admission policy for JSON-RPC methods while
// !authorised. Once a session is authorised, every method proceeds normally
// (the table only restricts the pre-authorization window).
func Admit(s *Session, method string) AdmitAction {
	if s.Authorised {
		return AdmitProceed
	}

	switch method {
	case "mining.suggest_difficulty", "mining.configure":
		return AdmitProceed
	case "mining.subscribe":
		return AdmitProceed
	case "mining.authorize":
		if s.Subscribed {
			return AdmitProceed
		}
		return AdmitDrop
	case "mining.submit":
		if s.Subscribed {
			return AdmitRejectStale
		}
		return AdmitDrop
	default:
		// any other method arriving before authorization drops the session,
		// whether or not it has subscribed.
		return AdmitDrop
	}
}
