package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/logger"
	"splithaus/internal/models"
	"splithaus/internal/splitwise"

	"gorm.io/gorm"
)

type householdService struct {
	db     *gorm.DB
	client *splitwise.Client
	tokens TokenServicer
}

// NewHouseholdService creates a new household service.
func NewHouseholdService(db *gorm.DB, client *splitwise.Client, tokens TokenServicer) HouseholdServicer {
	return &householdService{db: db, client: client, tokens: tokens}
}

// CreateHousehold creates a household owned by ownerID. The owner is always
// its first member. A Splitwise group id may be attached at creation.
func (s *householdService) CreateHousehold(ownerID, name, splitwiseGroupID, splitwiseGroupName string) (*models.Household, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Household name is required")
	}

	var owner models.User
	if err := s.db.First(&owner, "id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	household := &models.Household{
		Name:    name,
		OwnerID: owner.ID,
		Members: []models.User{owner},
	}
	if gid := strings.TrimSpace(splitwiseGroupID); gid != "" {
		household.SplitwiseGroupID = &gid
		household.SplitwiseGroupName = strings.TrimSpace(splitwiseGroupName)
	}

	if err := s.db.Create(household).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return household, nil
}

// GetUserHouseholds lists all households the user belongs to.
func (s *householdService) GetUserHouseholds(userID string) ([]models.Household, error) {
	var households []models.Household
	err := s.db.Preload("Members").
		Joins("JOIN household_members hm ON hm.household_id = households.id").
		Where("hm.user_id = ?", userID).
		Order("households.created_at DESC").
		Find(&households).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return households, nil
}

// GetHouseholdForMember fetches a household with members preloaded and
// enforces that userID is one of them.
func (s *householdService) GetHouseholdForMember(householdID, userID string) (*models.Household, error) {
	var household models.Household
	if err := s.db.Preload("Members").First(&household, "id = ?", householdID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrHouseholdNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !household.HasMember(userID) {
		return nil, apperrors.ErrNotAMember
	}
	return &household, nil
}

// UpdateHousehold applies owner-only mutations. Setting SplitwiseGroupID to
// an empty string unlinks the household and clears its pull cursor.
func (s *householdService) UpdateHousehold(householdID, actorID string, update HouseholdUpdate) (*models.Household, error) {
	household, err := s.GetHouseholdForMember(householdID, actorID)
	if err != nil {
		return nil, err
	}
	if household.OwnerID != actorID {
		return nil, apperrors.ErrNotOwner
	}

	updates := map[string]interface{}{}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Household name is required")
		}
		updates["name"] = name
		household.Name = name
	}
	if update.SplitwiseGroupID != nil {
		gid := strings.TrimSpace(*update.SplitwiseGroupID)
		if gid == "" {
			updates["splitwise_group_id"] = nil
			updates["splitwise_group_name"] = ""
			updates["sync_cursor"] = nil
			household.SplitwiseGroupID = nil
			household.SplitwiseGroupName = ""
			household.SyncCursor = nil
		} else {
			updates["splitwise_group_id"] = gid
			household.SplitwiseGroupID = &gid
			if update.SplitwiseGroupName == nil {
				updates["splitwise_group_name"] = ""
				household.SplitwiseGroupName = ""
			}
		}
	}
	if update.SplitwiseGroupName != nil && (update.SplitwiseGroupID == nil || strings.TrimSpace(*update.SplitwiseGroupID) != "") {
		gname := strings.TrimSpace(*update.SplitwiseGroupName)
		updates["splitwise_group_name"] = gname
		household.SplitwiseGroupName = gname
	}
	if len(updates) == 0 {
		return household, nil
	}

	if err := s.db.Model(&models.Household{}).Where("id = ?", household.ID).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return household, nil
}

// AddMember adds the user with the given email to the household. Owner only.
func (s *householdService) AddMember(householdID, actorID, email string) (*models.Household, error) {
	household, err := s.GetHouseholdForMember(householdID, actorID)
	if err != nil {
		return nil, err
	}
	if household.OwnerID != actorID {
		return nil, apperrors.ErrNotOwner
	}

	var user models.User
	if err := s.db.First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if household.HasMember(user.ID) {
		return nil, apperrors.ErrAlreadyMember
	}

	if err := s.db.Model(household).Association("Members").Append(&user); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	household.Members = append(household.Members, user)
	return household, nil
}

// RemoveMember removes a member. The owner can remove anyone but themselves;
// any member can remove themselves (leave).
func (s *householdService) RemoveMember(householdID, actorID, memberID string) (*models.Household, error) {
	household, err := s.GetHouseholdForMember(householdID, actorID)
	if err != nil {
		return nil, err
	}
	if memberID == household.OwnerID {
		return nil, apperrors.ErrOwnerCannotLeave
	}
	if actorID != household.OwnerID && actorID != memberID {
		return nil, apperrors.ErrNotOwner
	}
	if !household.HasMember(memberID) {
		return nil, apperrors.ErrUserNotFound
	}

	if err := s.db.Model(household).Association("Members").Delete(&models.User{Base: models.Base{ID: memberID}}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	kept := household.Members[:0]
	for _, m := range household.Members {
		if m.ID != memberID {
			kept = append(kept, m)
		}
	}
	household.Members = kept
	return household, nil
}

// ImportGroups mirrors the actor's Splitwise groups into households: one
// household per group, linked by group id, with member accounts upserted
// from the group's member list. Existing households are refreshed, not
// duplicated; the actor always ends up a member.
func (s *householdService) ImportGroups(ctx context.Context, actorID string) ([]models.Household, error) {
	var groups []splitwise.Group
	err := s.tokens.WithAccessToken(ctx, actorID, func(token string) error {
		var callErr error
		groups, callErr = s.client.GetGroups(ctx, token)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var actor models.User
	if err := s.db.First(&actor, "id = ?", actorID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	log := logger.Get()
	imported := make([]models.Household, 0, len(groups))
	for _, group := range groups {
		if group.ID == 0 {
			continue
		}
		household, err := s.importGroup(&actor, &group)
		if err != nil {
			log.Warnw("group import failed", "group_id", group.ID, "error", err)
			continue
		}
		imported = append(imported, *household)
	}
	return imported, nil
}

func (s *householdService) importGroup(actor *models.User, group *splitwise.Group) (*models.Household, error) {
	groupID := strconv.FormatInt(group.ID, 10)
	name := strings.TrimSpace(group.Name)
	if name == "" {
		name = "Splitwise Group " + groupID
	}

	members := []models.User{*actor}
	seen := map[string]bool{actor.ID: true}
	for i := range group.Members {
		remote := &group.Members[i]
		if remote.ID == 0 {
			continue
		}
		user, err := s.upsertRemoteMember(remote)
		if err != nil {
			return nil, err
		}
		if !seen[user.ID] {
			seen[user.ID] = true
			members = append(members, *user)
		}
	}

	var household models.Household
	err := s.db.Preload("Members").First(&household, "splitwise_group_id = ?", groupID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		household = models.Household{
			Name:               name,
			OwnerID:            actor.ID,
			Members:            members,
			SplitwiseGroupID:   &groupID,
			SplitwiseGroupName: name,
		}
		if err := s.db.Create(&household).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return &household, nil
	case err != nil:
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.db.Model(&models.Household{}).Where("id = ?", household.ID).
		Updates(map[string]interface{}{"splitwise_group_name": name}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	household.SplitwiseGroupName = name

	for _, member := range members {
		if household.HasMember(member.ID) {
			continue
		}
		m := member
		if err := s.db.Model(&household).Association("Members").Append(&m); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		household.Members = append(household.Members, m)
	}
	return &household, nil
}

// upsertRemoteMember finds or creates the local account for a Splitwise
// group member: first by remote id, then by email, else a fresh account
// with a placeholder email. Placeholder accounts have no password and
// become usable once the person connects their own Splitwise account.
func (s *householdService) upsertRemoteMember(remote *splitwise.RemoteUser) (*models.User, error) {
	remoteID := strconv.FormatInt(remote.ID, 10)

	var user models.User
	err := s.db.First(&user, "splitwise_id = ?", remoteID).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	email := strings.ToLower(strings.TrimSpace(remote.Email))
	if email != "" {
		err = s.db.First(&user, "email = ?", email).Error
		if err == nil {
			if user.SplitwiseID == nil {
				if err := s.db.Model(&user).Update("splitwise_id", remoteID).Error; err != nil {
					return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
				user.SplitwiseID = &remoteID
			}
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	if email == "" {
		email = fmt.Sprintf("splitwise_%s@local.invalid", remoteID)
	}

	user = models.User{
		Email:       email,
		Name:        remote.DisplayName(),
		SplitwiseID: &remoteID,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}
