package memory

import (
	"context"

	"camwatch/internal/core/domain"
)

type UserRepository struct {
	store *Store
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.userByName[user.Username]; taken {
		return domain.ErrUserExists
	}
	s.users[user.ID] = *user
	s.userByName[user.Username] = user.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userByName[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if current.Username != user.Username {
		if _, taken := s.userByName[user.Username]; taken {
			return domain.ErrUserExists
		}
		delete(s.userByName, current.Username)
		s.userByName[user.Username] = user.ID
	}
	s.users[user.ID] = *user
	return nil
}
