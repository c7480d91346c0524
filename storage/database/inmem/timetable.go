package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
)

type timetableRepository struct {
	db *DB
}

var _ timetable.Repository = (*timetableRepository)(nil)

func NewTimetableRepository(db *DB) *timetableRepository {
	return &timetableRepository{db: db}
}

func overrideKey(classID string, weekStart time.Time) string {
	return dateKey(classID, timetable.WeekStart(weekStart))
}

func sortSlots(slots []timetable.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Day != slots[j].Day {
			return slots[i].Day.Index() < slots[j].Day.Index()
		}
		return slots[i].Period < slots[j].Period
	})
}

// Slots

func (repo *timetableRepository) QueryActiveSlots(_ context.Context, classID string, _ ...core.DBExecutor) ([]timetable.Slot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	slots := make([]timetable.Slot, 0)
	for _, s := range repo.db.t.slots {
		if s.ClassID == classID && s.IsActive {
			slots = append(slots, s)
		}
	}
	sortSlots(slots)
	return slots, nil
}

func (repo *timetableRepository) DeactivateSlots(_ context.Context, classID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, s := range repo.db.t.slots {
		if s.ClassID == classID && s.IsActive {
			s.IsActive = false
			repo.db.t.slots[id] = s
		}
	}
	return nil
}

func (repo *timetableRepository) InsertSlots(_ context.Context, slots []timetable.Slot, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	active := make(map[timetable.SlotKey]bool)
	for _, s := range repo.db.t.slots {
		if s.IsActive {
			active[s.Key()] = true
		}
	}
	for _, s := range slots {
		if s.IsActive {
			if active[s.Key()] {
				return timetable.ErrConflict
			}
			active[s.Key()] = true
		}
	}
	for _, s := range slots {
		repo.db.t.slots[s.ID] = s
	}
	return nil
}

// Versions

func (repo *timetableRepository) CreateVersion(_ context.Context, v timetable.Version, _ ...core.DBExecutor) (timetable.Version, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.versions[v.ID]; ok {
		return timetable.Version{}, timetable.ErrConflict
	}
	stored := v
	stored.Slots = nil
	repo.db.t.versions[v.ID] = stored
	return v, nil
}

func (repo *timetableRepository) GetVersion(_ context.Context, id string, _ ...core.DBExecutor) (timetable.Version, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if v, ok := repo.db.t.versions[id]; ok {
		return v, nil
	}
	return timetable.Version{}, timetable.ErrNotFound
}

func (repo *timetableRepository) QueryVersions(_ context.Context, classID string, _ ...core.DBExecutor) ([]timetable.Version, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	versions := make([]timetable.Version, 0)
	for _, v := range repo.db.t.versions {
		if v.ClassID == classID {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].CreatedAt.After(versions[j].CreatedAt)
		}
		return versions[i].ID > versions[j].ID
	})
	return versions, nil
}

func (repo *timetableRepository) QueryVersionSlots(_ context.Context, versionID string, _ ...core.DBExecutor) ([]timetable.Slot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	slots := make([]timetable.Slot, 0)
	for _, s := range repo.db.t.slots {
		if s.VersionID == versionID {
			slots = append(slots, s)
		}
	}
	sortSlots(slots)
	return slots, nil
}

func (repo *timetableRepository) ActivateVersion(_ context.Context, v timetable.Version, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.versions[v.ID]; !ok {
		return timetable.ErrNotFound
	}
	for id, other := range repo.db.t.versions {
		if other.ClassID != v.ClassID {
			continue
		}
		other.IsActive = id == v.ID
		repo.db.t.versions[id] = other
	}
	return nil
}

func (repo *timetableRepository) ActivateVersionSlots(_ context.Context, v timetable.Version, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, s := range repo.db.t.slots {
		if s.ClassID != v.ClassID {
			continue
		}
		s.IsActive = s.VersionID == v.ID
		repo.db.t.slots[id] = s
	}
	return nil
}

// Weekly overrides

func (repo *timetableRepository) GetWeeklyOverride(_ context.Context, classID string, weekStart time.Time, _ ...core.DBExecutor) (timetable.WeeklyOverride, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if o, ok := repo.db.t.overrides[overrideKey(classID, weekStart)]; ok {
		return copyOverride(o), nil
	}
	return timetable.WeeklyOverride{}, timetable.ErrNotFound
}

// LockWeeklyOverride needs no lock: InTx already serializes units of work.
func (repo *timetableRepository) LockWeeklyOverride(ctx context.Context, classID string, weekStart time.Time, exec ...core.DBExecutor) (timetable.WeeklyOverride, error) {
	return repo.GetWeeklyOverride(ctx, classID, weekStart, exec...)
}

func (repo *timetableRepository) InsertWeeklyOverrideIfAbsent(_ context.Context, o timetable.WeeklyOverride, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := overrideKey(o.ClassID, o.WeekStart)
	if _, ok := repo.db.t.overrides[key]; ok {
		return false, nil
	}
	repo.db.t.overrides[key] = copyOverride(o)
	return true, nil
}

func (repo *timetableRepository) SaveWeeklyOverride(_ context.Context, o timetable.WeeklyOverride, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := overrideKey(o.ClassID, o.WeekStart)
	prev, ok := repo.db.t.overrides[key]
	if !ok || prev.ID != o.ID {
		return timetable.ErrNotFound
	}
	repo.db.t.overrides[key] = copyOverride(o)
	return nil
}

// Changes

func (repo *timetableRepository) CreateChange(_ context.Context, c timetable.Change, _ ...core.DBExecutor) (timetable.Change, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.changes[c.ID]; ok {
		return timetable.Change{}, timetable.ErrConflict
	}
	repo.db.t.changes[c.ID] = c
	return c, nil
}

func (repo *timetableRepository) QueryChanges(_ context.Context, f timetable.ChangeFilter, _ ...core.DBExecutor) ([]timetable.Change, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	changes := make([]timetable.Change, 0)
	for _, c := range repo.db.t.changes {
		switch {
		case len(f.ClassIDs) > 0 && !containsString(f.ClassIDs, c.ClassID):
		case f.Key != nil && c.Key() != *f.Key:
		case f.Date != nil && !sameDate(c.Date, *f.Date):
		case f.OriginalTeacherID != "" && (c.OriginalTeacherID == nil || *c.OriginalTeacherID != f.OriginalTeacherID):
		case f.Source != "" && c.Source != f.Source:
		case f.ActiveOnly && !c.IsActive:
		default:
			changes = append(changes, c)
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		if !changes[i].Date.Equal(changes[j].Date) {
			return changes[i].Date.Before(changes[j].Date)
		}
		if !changes[i].CreatedAt.Equal(changes[j].CreatedAt) {
			return changes[i].CreatedAt.Before(changes[j].CreatedAt)
		}
		return changes[i].ID < changes[j].ID
	})
	return changes, nil
}

func (repo *timetableRepository) UpdateChange(_ context.Context, c timetable.Change, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.changes[c.ID]; !ok {
		return timetable.ErrNotFound
	}
	repo.db.t.changes[c.ID] = c
	return nil
}

// Substitutions

func (repo *timetableRepository) CreateSubstitution(_ context.Context, s timetable.Substitution, _ ...core.DBExecutor) (timetable.Substitution, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.subs[s.ID]; ok {
		return timetable.Substitution{}, timetable.ErrConflict
	}
	if s.IsLive() {
		for _, other := range repo.db.t.subs {
			if other.IsLive() && other.Key() == s.Key() && sameDate(other.Date, s.Date) {
				return timetable.Substitution{}, timetable.ErrConflict
			}
		}
	}
	repo.db.t.subs[s.ID] = s
	return s, nil
}

func (repo *timetableRepository) GetSubstitution(_ context.Context, id string, _ ...core.DBExecutor) (timetable.Substitution, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.subs[id]; ok {
		return s, nil
	}
	return timetable.Substitution{}, timetable.ErrNotFound
}

func (repo *timetableRepository) QuerySubstitutions(_ context.Context, f timetable.SubstitutionFilter, _ ...core.DBExecutor) ([]timetable.Substitution, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	hasStatus := func(st timetable.SubstitutionStatus) bool {
		for _, s := range f.Statuses {
			if s == st {
				return true
			}
		}
		return false
	}

	subs := make([]timetable.Substitution, 0)
	for _, s := range repo.db.t.subs {
		d := timetable.Date(s.Date)
		switch {
		case len(f.ClassIDs) > 0 && !containsString(f.ClassIDs, s.ClassID):
		case f.Key != nil && s.Key() != *f.Key:
		case f.Date != nil && !d.Equal(timetable.Date(*f.Date)):
		case f.DateFrom != nil && d.Before(timetable.Date(*f.DateFrom)):
		case f.DateTo != nil && d.After(timetable.Date(*f.DateTo)):
		case len(f.Statuses) > 0 && !hasStatus(s.Status):
		case f.OriginalTeacherID != "" && s.OriginalTeacherID != f.OriginalTeacherID:
		case f.SubstituteTeacherID != "" && (s.SubstituteTeacherID == nil || *s.SubstituteTeacherID != f.SubstituteTeacherID):
		default:
			subs = append(subs, s)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.ID < b.ID
	})
	return subs, nil
}

func (repo *timetableRepository) UpdateSubstitution(_ context.Context, s timetable.Substitution, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.subs[s.ID]; !ok {
		return timetable.ErrNotFound
	}
	if s.IsLive() {
		for id, other := range repo.db.t.subs {
			if id != s.ID && other.IsLive() && other.Key() == s.Key() && sameDate(other.Date, s.Date) {
				return timetable.ErrConflict
			}
		}
	}
	repo.db.t.subs[s.ID] = s
	return nil
}

func (repo *timetableRepository) DeleteSubstitutions(_ context.Context, ids []string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.t.subs, id)
	}
	return nil
}
