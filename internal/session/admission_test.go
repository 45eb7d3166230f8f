package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmitAuthorizedSessionProceedsForAnyMethod(t *testing.T) {
	s := &Session{Authorised: true}
	assert.Equal(t, AdmitProceed, Admit(s, "mining.submit"))
	assert.Equal(t, AdmitProceed, Admit(s, "whatever"))
}

func TestAdmitSubscribeAlwaysProceeds(t *testing.T) {
	s := &Session{}
	assert.Equal(t, AdmitProceed, Admit(s, "mining.subscribe"))
}

func TestAdmitSuggestDifficultyAndConfigureAlwaysProceed(t *testing.T) {
	s := &Session{}
	assert.Equal(t, AdmitProceed, Admit(s, "mining.suggest_difficulty"))
	assert.Equal(t, AdmitProceed, Admit(s, "mining.configure"))
}

func TestAdmitSubmitBeforeAuthorizedIsRejectStale(t *testing.T) {
	s := &Session{Subscribed: true, Authorising: true}
	assert.Equal(t, AdmitRejectStale, Admit(s, "mining.submit"))
}

func TestAdmitAuthorizeRequiresSubscribed(t *testing.T) {
	fresh := &Session{}
	assert.Equal(t, AdmitDrop, Admit(fresh, "mining.authorize"))

	subscribed := &Session{Subscribed: true}
	assert.Equal(t, AdmitProceed, Admit(subscribed, "mining.authorize"))
}

func TestAdmitUnknownMethodDropsUnsubscribedSession(t *testing.T) {
	s := &Session{}
	assert.Equal(t, AdmitDrop, Admit(s, "mining.extranonce.subscribe"))
}
