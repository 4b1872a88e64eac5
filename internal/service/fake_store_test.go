package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"familypoints/internal/cache"
	"familypoints/internal/models"
	"familypoints/internal/repository"

	"github.com/google/uuid"
)

// fakeStore keeps every table in memory. Its compare-and-set and guarded
// balance updates behave like the SQL repositories. The fail* fields inject errors.
type fakeStore struct {
	users         map[string]*models.User
	families      map[string]*models.Family
	tasks         map[string]*models.Task
	rewards       map[string]*models.Reward
	claims        map[string]*models.RewardClaim
	notifications []*models.Notification
	journal       []models.PointTransaction

	failCredit      error
	failDeduct      error
	failDeleteClaim error
	failClaimRevert error
	failTaskRevert  error
	failNotifyFor   map[string]error

	// beforeTaskCAS runs before each task status compare-and-set
	beforeTaskCAS func(id string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]*models.User{},
		families:      map[string]*models.Family{},
		tasks:         map[string]*models.Task{},
		rewards:       map[string]*models.Reward{},
		claims:        map[string]*models.RewardClaim{},
		failNotifyFor: map[string]error{},
	}
}

// Users

func (f *fakeStore) CreateUser(_ context.Context, email, passwordHash, fullName string) (*models.User, error) {
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     fullName,
		Role:         models.RoleMember,
		CreatedAt:    time.Now().UTC(),
	}
	f.users[u.ID] = u
	return copyUser(u), nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetFamilyMembers(_ context.Context, familyID string) ([]models.User, error) {
	var members []models.User
	for _, u := range f.users {
		if u.BelongsTo(familyID) {
			members = append(members, *copyUser(u))
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].IsAdmin() != members[j].IsAdmin() {
			return members[i].IsAdmin()
		}
		return members[i].FullName < members[j].FullName
	})
	return members, nil
}

func (f *fakeStore) GetFamilyAdmins(ctx context.Context, familyID string) ([]models.User, error) {
	members, _ := f.GetFamilyMembers(ctx, familyID)
	var admins []models.User
	for _, m := range members {
		if m.IsAdmin() {
			admins = append(admins, m)
		}
	}
	return admins, nil
}

func (f *fakeStore) SetFamilyMembership(_ context.Context, userID, familyID string, role models.Role) (int64, error) {
	u, ok := f.users[userID]
	if !ok {
		return 0, nil
	}
	u.FamilyID = &familyID
	u.Role = role
	return 1, nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

// Families

func (f *fakeStore) CreateFamily(_ context.Context, name, adminID string) (*models.Family, error) {
	admin, ok := f.users[adminID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	family := &models.Family{ID: uuid.NewString(), Name: name, AdminID: adminID, CreatedAt: time.Now().UTC()}
	f.families[family.ID] = family
	admin.FamilyID = &family.ID
	admin.Role = models.RoleAdmin
	c := *family
	return &c, nil
}

func (f *fakeStore) GetFamilyByID(_ context.Context, familyID string) (*models.Family, error) {
	if family, ok := f.families[familyID]; ok {
		c := *family
		return &c, nil
	}
	return nil, nil
}

// Tasks

func (f *fakeStore) InsertTask(_ context.Context, task *models.Task) error {
	task.ID = uuid.NewString()
	task.CreatedAt = time.Now().UTC()
	task.UpdatedAt = task.CreatedAt
	c := *task
	f.tasks[task.ID] = &c
	return nil
}

func (f *fakeStore) GetTaskByID(_ context.Context, id string) (*models.Task, error) {
	if t, ok := f.tasks[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (f *fakeStore) ListTasks(_ context.Context, filter models.TaskFilter) ([]models.Task, error) {
	var tasks []models.Task
	for _, t := range f.tasks {
		if filter.FamilyID != "" && t.FamilyID != filter.FamilyID {
			continue
		}
		if filter.AssignedTo != "" && t.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (f *fakeStore) UpdateTaskStatus(_ context.Context, id string, from, to models.TaskStatus, at time.Time) (bool, error) {
	if f.beforeTaskCAS != nil {
		f.beforeTaskCAS(id)
	}
	if from == models.TaskApproved && f.failTaskRevert != nil {
		return false, f.failTaskRevert
	}
	t, ok := f.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = at
	if from == models.TaskInProgress && to == models.TaskCompleted {
		t.CompletedAt = &at
	}
	if to == models.TaskApproved {
		t.ApprovedAt = &at
	} else {
		t.ApprovedAt = nil
	}
	return true, nil
}

func (f *fakeStore) DeleteTask(_ context.Context, id, familyID string) (int64, error) {
	t, ok := f.tasks[id]
	if !ok || t.FamilyID != familyID || t.Status == models.TaskApproved {
		return 0, nil
	}
	delete(f.tasks, id)
	return 1, nil
}

func (f *fakeStore) CountTasksByStatus(_ context.Context, familyID string, status models.TaskStatus) (int, error) {
	count := 0
	for _, t := range f.tasks {
		if t.FamilyID == familyID && t.Status == status {
			count++
		}
	}
	return count, nil
}

// Rewards

func (f *fakeStore) InsertReward(_ context.Context, reward *models.Reward) error {
	reward.ID = uuid.NewString()
	reward.IsActive = true
	reward.CreatedAt = time.Now().UTC()
	c := *reward
	f.rewards[reward.ID] = &c
	return nil
}

func (f *fakeStore) GetRewardByID(_ context.Context, id string) (*models.Reward, error) {
	if r, ok := f.rewards[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (f *fakeStore) ListActiveRewards(_ context.Context, familyID string) ([]models.Reward, error) {
	var rewards []models.Reward
	for _, r := range f.rewards {
		if r.FamilyID == familyID && r.IsActive {
			rewards = append(rewards, *r)
		}
	}
	sort.Slice(rewards, func(i, j int) bool { return rewards[i].PointsRequired < rewards[j].PointsRequired })
	return rewards, nil
}

func (f *fakeStore) UpdateReward(_ context.Context, reward *models.Reward) (int64, error) {
	r, ok := f.rewards[reward.ID]
	if !ok || r.FamilyID != reward.FamilyID || !r.IsActive {
		return 0, nil
	}
	r.Title = reward.Title
	r.Description = reward.Description
	r.PointsRequired = reward.PointsRequired
	r.RequiresApproval = reward.RequiresApproval
	return 1, nil
}

func (f *fakeStore) DeactivateReward(_ context.Context, id, familyID string) (int64, error) {
	r, ok := f.rewards[id]
	if !ok || r.FamilyID != familyID || !r.IsActive {
		return 0, nil
	}
	r.IsActive = false
	return 1, nil
}

// Claims

func (f *fakeStore) InsertClaim(_ context.Context, claim *models.RewardClaim) error {
	claim.ID = uuid.NewString()
	c := *claim
	f.claims[claim.ID] = &c
	return nil
}

func (f *fakeStore) GetClaimByID(_ context.Context, id string) (*models.RewardClaim, error) {
	if c, ok := f.claims[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) DeleteClaim(_ context.Context, id string) (int64, error) {
	if f.failDeleteClaim != nil {
		return 0, f.failDeleteClaim
	}
	if _, ok := f.claims[id]; !ok {
		return 0, nil
	}
	delete(f.claims, id)
	return 1, nil
}

func (f *fakeStore) UpdateClaimStatus(_ context.Context, id string, from, to models.ClaimStatus, processedAt *time.Time) (bool, error) {
	if from == models.ClaimApproved && f.failClaimRevert != nil {
		return false, f.failClaimRevert
	}
	c, ok := f.claims[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.ProcessedAt = processedAt
	return true, nil
}

func (f *fakeStore) ListClaimsByUser(_ context.Context, userID string) ([]models.ClaimWithReward, error) {
	return f.listClaims(func(c *models.RewardClaim, _ *models.Reward) bool { return c.UserID == userID }), nil
}

func (f *fakeStore) ListClaimsByFamily(_ context.Context, familyID string, status models.ClaimStatus) ([]models.ClaimWithReward, error) {
	return f.listClaims(func(c *models.RewardClaim, r *models.Reward) bool {
		return r.FamilyID == familyID && (status == "" || c.Status == status)
	}), nil
}

func (f *fakeStore) listClaims(keep func(*models.RewardClaim, *models.Reward) bool) []models.ClaimWithReward {
	var out []models.ClaimWithReward
	for _, c := range f.claims {
		r := f.rewards[c.RewardID]
		if r == nil || !keep(c, r) {
			continue
		}
		name := ""
		if u := f.users[c.UserID]; u != nil {
			name = u.FullName
		}
		out = append(out, models.ClaimWithReward{RewardClaim: *c, Reward: *r, UserName: name})
	}
	return out
}

// Notifications

func (f *fakeStore) InsertNotification(_ context.Context, n *models.Notification) error {
	if err := f.failNotifyFor[n.UserID]; err != nil {
		return err
	}
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	c := *n
	f.notifications = append(f.notifications, &c)
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	var out []models.Notification
	for i := len(f.notifications) - 1; i >= 0; i-- {
		if n := f.notifications[i]; n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkRead(_ context.Context, id, userID string) (int64, error) {
	for _, n := range f.notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) MarkAllRead(_ context.Context, userID string) (int64, error) {
	var changed int64
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (f *fakeStore) CountUnread(_ context.Context, userID string) (int, error) {
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// Points

func (f *fakeStore) AddUserPoints(_ context.Context, userID string, amount int, reason models.PointReason, ref repository.PointRef) (int, error) {
	if f.failCredit != nil {
		return 0, f.failCredit
	}
	return f.adjust(userID, amount, reason, ref)
}

func (f *fakeStore) DeductUserPoints(_ context.Context, userID string, amount int, reason models.PointReason, ref repository.PointRef) (int, error) {
	if f.failDeduct != nil {
		return 0, f.failDeduct
	}
	return f.adjust(userID, -amount, reason, ref)
}

func (f *fakeStore) adjust(userID string, delta int, reason models.PointReason, ref repository.PointRef) (int, error) {
	u, ok := f.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	if u.Points+delta < 0 {
		return 0, repository.ErrInsufficientPoints
	}
	u.Points += delta
	f.journal = append(f.journal, models.PointTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		TaskID:    ref.TaskID,
		ClaimID:   ref.ClaimID,
		CreatedAt: time.Now().UTC(),
	})
	return u.Points, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, userID string) ([]models.PointTransaction, error) {
	var out []models.PointTransaction
	for _, tx := range f.journal {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) ListBalanceChecks(_ context.Context) ([]models.BalanceCheck, error) {
	totals := map[string]int{}
	for _, tx := range f.journal {
		totals[tx.UserID] += tx.Delta
	}
	var checks []models.BalanceCheck
	for _, u := range f.users {
		checks = append(checks, models.BalanceCheck{UserID: u.ID, Email: u.Email, Balance: u.Points, JournalTotal: totals[u.ID]})
	}
	return checks, nil
}

// Fixture helpers

// seedUser adds a user directly, bypassing the journal. Tests that seed a
// balance do so through seedPoints so the journal stays consistent.
func (f *fakeStore) seedUser(name string, role models.Role, familyID string) *models.User {
	u := &models.User{
		ID:       uuid.NewString(),
		Email:    name + "@example.com",
		FullName: name,
		Role:     role,
	}
	if familyID != "" {
		u.FamilyID = &familyID
	}
	f.users[u.ID] = u
	return copyUser(u)
}

func (f *fakeStore) seedPoints(t *testing.T, userID string, amount int) {
	t.Helper()
	if _, err := f.adjust(userID, amount, models.ReasonTaskApproved, repository.PointRef{}); err != nil {
		t.Fatalf("seed points: %v", err)
	}
}

func (f *fakeStore) balance(userID string) int {
	return f.users[userID].Points
}

func (f *fakeStore) notificationsFor(userID string) []*models.Notification {
	var out []*models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	store    *fakeStore
	gate     *Gate
	notifier *NotificationService
	tasks    *TaskService
	rewards  *RewardService
	familyID string
	admin    *models.User
	member   *models.User
}

func newFixture(strict bool) *fixture {
	store := newFakeStore()
	gate := NewGate(strict)
	notifier := NewNotificationService(store, cache.NopBadgeCache{}, nil)

	familyID := uuid.NewString()
	store.families[familyID] = &models.Family{ID: familyID, Name: "Parker"}
	admin := store.seedUser("Mum", models.RoleAdmin, familyID)
	member := store.seedUser("Sam", models.RoleMember, familyID)
	store.families[familyID].AdminID = admin.ID

	return &fixture{
		store:    store,
		gate:     gate,
		notifier: notifier,
		tasks:    NewTaskService(store, store, store, notifier, gate, nil),
		rewards:  NewRewardService(store, store, store, store, notifier, gate),
		familyID: familyID,
		admin:    admin,
		member:   member,
	}
}

var errStore = errors.New("store unavailable")
