package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/ratiba/apps/api/echo"
	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/tests"
)

func scheduleBody(t *testing.T, slots ...timetable.SlotInput) []byte {
	return marchallObj(t, timetable.ReplaceSchedule{Name: "Term 1", Slots: slots})
}

func Test_timetableApi_auth(t *testing.T) {
	app, f := newApp(t)
	c1 := f.AddClass("7A")
	path := "/v1/classes/" + c1.ID + "/schedule"
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	teacherToken := getToken(t, f.Conf, teacherID, false)

	tests := []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Invalid token", path: path, token: "lol", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "Admin required (replace)", method: http.MethodPut, path: path, token: teacherToken,
			body: scheduleBody(t), wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Admin required (edit slot)", method: http.MethodPut, token: teacherToken,
			path:     "/v1/classes/" + c1.ID + "/weeks/2024-01-15/slots/monday/1",
			body:     []byte(`{}`),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Admin required (promote)", method: http.MethodPost, token: teacherToken,
			path:     "/v1/classes/" + c1.ID + "/weeks/2024-01-15/promote",
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{name: "Teachers can read", path: path, token: teacherToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	runTests(t, app, tests)
}

func Test_timetableApi_replaceSchedule(t *testing.T) {
	app, f := newApp(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	token := getToken(t, f.Conf, adminID, true)
	path := "/v1/classes/" + c1.ID + "/schedule"

	badDay := testutil.Slot(timetable.Monday, 1, tom.ID, "math")
	badDay.Day = "funday"

	tests := []httpTest{
		{
			name: "Unknown class", method: http.MethodPut, path: "/v1/classes/lol/schedule", token: token,
			body:     scheduleBody(t, testutil.Slot(timetable.Monday, 1, tom.ID, "math")),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "class not found"}),
		},
		{
			name: "Invalid day", method: http.MethodPut, path: path, token: token, body: scheduleBody(t, badDay),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"day": "day must be a weekday name (monday to sunday)"}),
		},
		{
			name: "Duplicate period", method: http.MethodPut, path: path, token: token,
			body: scheduleBody(t,
				testutil.Slot(timetable.Monday, 1, tom.ID, "math"),
				testutil.Slot(timetable.Monday, 1, tom.ID, "math"),
			),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"slots[1]": "duplicates slots[0] (monday period 1)"}),
		},
		{
			name: "Unknown teacher", method: http.MethodPut, path: path, token: token,
			body:     scheduleBody(t, testutil.Slot(timetable.Monday, 1, "lol", "math")),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"slots[0].teacher_id": "teacher not found"}),
		},
	}
	runTests(t, app, tests)

	var v timetable.Version
	rec := do(t, app, http.MethodPut, path, token, scheduleBody(t,
		testutil.Slot(timetable.Tuesday, 2, tom.ID, "math"),
		testutil.Slot(timetable.Monday, 1, tom.ID, "math"),
	), &v)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Term 1", v.Name)
	assert.Equal(t, adminID, v.CreatedBy)
	assert.True(t, v.IsActive)
	require.Len(t, v.Slots, 2)
	assert.Equal(t, timetable.Monday, v.Slots[0].Day)

	slots, err := f.Timetable.GlobalSchedule(context.Background(), c1.ID)
	require.NoError(t, err)
	runTests(t, app, []httpTest{
		{name: "Get schedule", path: path, token: token, wantCode: http.StatusOK, wantData: marchallObj(t, slots)},
	})

	var versions []timetable.Version
	rec = do(t, app, http.MethodGet, "/v1/classes/"+c1.ID+"/versions", token, nil, &versions)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, versions, 1)
	assert.Equal(t, v.ID, versions[0].ID)
}

func Test_timetableApi_weeks(t *testing.T) {
	app, f := newApp(t)
	c1, c2 := f.AddClass("7A"), f.AddClass("7B")
	tom := f.AddTeacher("Tom", "math")
	sam := f.AddTeacher("Sam", "math")
	bea := f.AddTeacher("Bea", "english")
	token := getToken(t, f.Conf, adminID, true)
	ctx := context.Background()

	for cls, slot := range map[string]timetable.SlotInput{
		c1.ID: testutil.Slot(timetable.Monday, 1, tom.ID, "math"),
		c2.ID: testutil.Slot(timetable.Monday, 1, bea.ID, "english"),
	} {
		_, err := f.Timetable.ReplaceGlobalSchedule(ctx, timetable.ReplaceSchedule{ClassID: cls, Slots: []timetable.SlotInput{slot}})
		require.NoError(t, err)
	}
	week := "/v1/classes/" + c1.ID + "/weeks/2024-01-17" // a wednesday; resolves to its monday

	tests := []httpTest{
		{
			name: "Invalid week", path: "/v1/classes/" + c1.ID + "/weeks/lol/schedule", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"week_start": "invalid date"}),
		},
		{
			name: "Invalid day", method: http.MethodPut, path: week + "/slots/funday/1", token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"day": "invalid day"}),
		},
		{
			name: "Invalid period", method: http.MethodPut, path: week + "/slots/monday/0", token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"period": "invalid period"}),
		},
		{
			name: "Teacher without subject", method: http.MethodPut, path: week + "/slots/monday/1", token: token,
			body:     marchallObj(t, map[string]string{"teacher_id": sam.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"subject_id": "subject_id is required with teacher_id"}),
		},
		{
			name: "Remove missing period", method: http.MethodPut, path: week + "/slots/friday/3", token: token,
			body: []byte(`{}`), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: timetable.ErrNotFound.Error()}),
		},
		{
			name: "No override to promote", method: http.MethodGet, path: "/v1/classes/" + c1.ID + "/weeks/2024-01-22/promote/preview",
			token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: timetable.ErrNotFound.Error()}),
		},
	}
	runTests(t, app, tests)

	var ws timetable.WeeklySchedule
	rec := do(t, app, http.MethodGet, week+"/schedule", token, nil, &ws)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, ws.HasOverride)
	assert.Equal(t, testutil.Date(t, "2024-01-15"), ws.WeekStart)
	require.Len(t, ws.Entries, 1)

	// the busy teacher is refused
	rec = do(t, app, http.MethodPut, week+"/slots/monday/1", token,
		marchallObj(t, map[string]string{"teacher_id": bea.ID, "subject_id": "english"}), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var ov timetable.WeeklyOverride
	rec = do(t, app, http.MethodPut, week+"/slots/monday/1", token,
		marchallObj(t, map[string]string{"teacher_id": sam.ID, "subject_id": "math", "room": "Lab 2", "reason": "workshop"}), &ov)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, ov.ModificationCount)
	assert.Equal(t, adminID, core.StringVal(ov.LastModifiedBy))
	e, ok := ov.Entry(timetable.Monday, 1)
	require.True(t, ok)
	assert.Equal(t, sam.ID, core.StringVal(e.TeacherID))
	assert.Equal(t, "Lab 2", core.StringVal(e.Room))

	var preview PreviewResponse
	rec = do(t, app, http.MethodGet, week+"/promote/preview", token, nil, &preview)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(preview.Diff, "--- global\n+++ week of 2024-01-15\n"))
	assert.Contains(t, preview.Diff, "teacher="+sam.ID)

	var v timetable.Version
	rec = do(t, app, http.MethodPost, week+"/promote", token, nil, &v)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, v.Slots, 1)
	assert.Equal(t, sam.ID, v.Slots[0].TeacherID)
	assert.Equal(t, adminID, v.CreatedBy)

	var changes []timetable.Change
	rec = do(t, app, http.MethodGet, "/v1/schedule-changes?date=2024-01-15", token, nil, &changes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, changes, 1)
	assert.Equal(t, timetable.ChangeManual, changes[0].Type)
}

func Test_timetableApi_candidates(t *testing.T) {
	app, f := newApp(t)
	c1 := f.AddClass("7A")
	tom := f.AddTeacher("Tom", "math")
	zed := f.AddTeacher("Zed", "math")
	amy := f.AddTeacher("Amy")
	_, err := f.Timetable.ReplaceGlobalSchedule(context.Background(), timetable.ReplaceSchedule{
		ClassID: c1.ID,
		Slots:   []timetable.SlotInput{testutil.Slot(timetable.Monday, 1, tom.ID, "math")},
	})
	require.NoError(t, err)
	token := getToken(t, f.Conf, teacherID, false)

	runTests(t, app, []httpTest{
		{
			name: "Missing query", path: "/v1/classes/" + c1.ID + "/candidates?day=monday&period=1", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"week_start": "this field is required"}),
		},
	})

	var candidates []timetable.Candidate
	path := "/v1/classes/" + c1.ID + "/candidates?day=monday&period=1&week_start=2024-01-15&subject_id=math&exclude_teacher_id=" + tom.ID
	rec := do(t, app, http.MethodGet, path, token, nil, &candidates)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, candidates, 2)
	assert.Equal(t, zed.ID, candidates[0].TeacherID)
	assert.True(t, candidates[0].SubjectCompatible)
	assert.Equal(t, amy.ID, candidates[1].TeacherID)

	var avail AvailabilityResponse
	rec = do(t, app, http.MethodGet, "/v1/teachers/"+tom.ID+"/availability?day=monday&period=1&date=2024-01-15", token, nil, &avail)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, avail.Available)
	rec = do(t, app, http.MethodGet, "/v1/teachers/"+tom.ID+"/availability?day=monday&period=2&date=2024-01-15", token, nil, &avail)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, avail.Available)
}
