package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/darasahq/darasa/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByStaffID(_ context.Context, staffID string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if usr.StaffID != "" && usr.StaffID == staffID {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryAllUsers(_ context.Context) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		users = append(users, *usr)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (repo *userRepository) QueryUsersByRole(_ context.Context, role string) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var users []user.User
	for _, usr := range repo.db.users {
		if usr.Role == role {
			users = append(users, *usr)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) CreateStudent(_ context.Context, st user.Student) (user.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if usr, ok := repo.db.users[st.UserID]; ok {
		st.User = *usr
	}
	repo.db.students[st.ID] = &st
	return st, nil
}

func (repo *userRepository) withUser(st user.Student) user.Student {
	if usr, ok := repo.db.users[st.UserID]; ok {
		st.User = *usr
	}
	return st
}

func (repo *userRepository) GetStudentByUserID(_ context.Context, userID string) (user.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, st := range repo.db.students {
		if st.UserID == userID {
			return repo.withUser(*st), nil
		}
	}
	return user.Student{}, user.ErrStudentNotFound
}

func (repo *userRepository) GetStudentByStudentID(_ context.Context, studentID string) (user.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, st := range repo.db.students {
		if st.StudentID != "" && st.StudentID == studentID {
			return repo.withUser(*st), nil
		}
	}
	return user.Student{}, user.ErrStudentNotFound
}

func (repo *userRepository) GetStudentByMatricNumber(_ context.Context, matricNumber string) (user.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, st := range repo.db.students {
		if st.MatricNumber != "" && st.MatricNumber == matricNumber {
			return repo.withUser(*st), nil
		}
	}
	return user.Student{}, user.ErrStudentNotFound
}

func (repo *userRepository) QueryStudentsByParentID(_ context.Context, parentID string) ([]user.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var students []user.Student
	for _, st := range repo.db.students {
		if st.ParentID == parentID {
			students = append(students, repo.withUser(*st))
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].CreatedAt.Before(students[j].CreatedAt) })
	return students, nil
}

type tokenRepository struct {
	db *DB
}

var _ user.TokenRepository = (*tokenRepository)(nil) // interface compliance check

func NewTokenRepository(db *DB) user.TokenRepository {
	return &tokenRepository{db: db}
}

func (repo *tokenRepository) BlacklistToken(_ context.Context, tok user.BlacklistedToken) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.blacklist[tok.Token] = &tok
	return nil
}

func (repo *tokenRepository) IsTokenBlacklisted(_ context.Context, token string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	_, ok := repo.db.blacklist[token]
	return ok, nil
}

func (repo *tokenRepository) DeleteExpiredBlacklistedTokens(_ context.Context, now time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var count int
	for token, tok := range repo.db.blacklist {
		if now.After(tok.ExpiresAt) {
			delete(repo.db.blacklist, token)
			count++
		}
	}
	return count, nil
}

func (repo *tokenRepository) CreatePasswordResetToken(_ context.Context, tok user.PasswordResetToken) (user.PasswordResetToken, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.resetTokens[tok.Token] = &tok
	return tok, nil
}

func (repo *tokenRepository) GetPasswordResetToken(_ context.Context, token string) (user.PasswordResetToken, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if tok, ok := repo.db.resetTokens[token]; ok {
		return *tok, nil
	}
	return user.PasswordResetToken{}, user.ErrNotFound
}

func (repo *tokenRepository) UpdatePasswordResetToken(_ context.Context, tok user.PasswordResetToken) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.resetTokens[tok.Token]; !ok {
		return user.ErrNotFound
	}
	repo.db.resetTokens[tok.Token] = &tok
	return nil
}
