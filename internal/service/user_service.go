package service

import (
	"context"
	"strings"

	"skillpath_backend/internal/model"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/util"

	"go.uber.org/zap"
)

type UserService struct {
	UserRepo *repository.UserRepository
	Log      *zap.Logger
}

func NewUserService(userRepo *repository.UserRepository, log *zap.Logger) *UserService {
	return &UserService{UserRepo: userRepo, Log: log.Named("user")}
}

type ProfileRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		if util.IsRecordNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, util.Transient(err)
	}
	return user, nil
}

// UpdateProfile 改名不影响已签发证书上的姓名
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, req ProfileRequest) (*model.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name required")
	}
	if err := s.UserRepo.UpdateName(ctx, userID, name); err != nil {
		if util.IsRecordNotFound(err) {
			return nil, util.ErrUserNotFound
		}
		return nil, util.Transient(err)
	}
	return s.GetUserByID(ctx, userID)
}
