package storefront

import (
	"sync"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// Identity tells the stores who is signed in.
type Identity interface {
	CurrentUser() (models.User, bool)
}

// Session is the signed-in user of one storefront client
type Session struct {
	mu   sync.RWMutex
	user models.User
}

func (s *Session) SignIn(u models.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

func (s *Session) SignOut() {
	s.mu.Lock()
	s.user = models.User{}
	s.mu.Unlock()
}

func (s *Session) CurrentUser() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.user.ID != ""
}

func signedIn(id Identity, action string) (models.User, error) {
	if id == nil {
		return models.User{}, apperr.AuthRequired(action)
	}
	u, ok := id.CurrentUser()
	if !ok {
		return models.User{}, apperr.AuthRequired(action)
	}
	return u, nil
}
