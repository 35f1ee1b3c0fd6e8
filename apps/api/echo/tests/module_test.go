package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
)

func createModule(t *testing.T, courseID int, name string, publish bool) course.Module {
	t.Helper()
	mod, err := courseSvc.Create(context.Background(), courseID, course.NewModule{Name: name})
	if err != nil {
		t.Fatalf("Create(): %v", err)
	}
	if publish {
		if mod, err = courseSvc.Publish(context.Background(), courseID, mod.ID); err != nil {
			t.Fatalf("Publish(): %v", err)
		}
	}
	return mod
}

func modulesPath(courseID int) string {
	return fmt.Sprintf("/v1/courses/%d/modules", courseID)
}

func Test_moduleApi_create(t *testing.T) {
	courseID := 101
	teacher := createUser(t, "Create Teacher", "createteacher", "cteacher@test.cd", user.TeacherRoles, true)
	student := createUser(t, "Create Student", "createstudent", "cstudent@test.cd", user.StudentRoles, true)

	tests := []httpTest{
		{
			name: "Auth required", body: []byte(`{"name":"Intro"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Students cannot create", token: getToken(t, student), body: []byte(`{"name":"Intro"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Name required", token: getToken(t, teacher), body: []byte(`{"name":"  "}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{name: "Created", token: getToken(t, teacher), body: []byte(`{"name":"Intro"}`), wantCode: http.StatusCreated},
		{name: "Appended after existing", token: getToken(t, teacher), body: []byte(`{"name":"Basics"}`), wantCode: http.StatusCreated},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, modulesPath(courseID), tt.token, tt.body)
			app.ServeHTTP(rec, req)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
			}
			var mod course.Module
			if err := json.Unmarshal(rec.Body.Bytes(), &mod); err != nil {
				t.Fatalf("unmarshalling module: %v", err)
			}
			wantPos := i - 2 // first created lands at 1
			if mod.CourseID != courseID || mod.Position != wantPos || mod.WorkflowState != course.WorkflowUnpublished {
				t.Errorf("failed! module = %v", rec.Body.String())
			}
		})
	}

	t.Run("Bad course id in path", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/lol/modules", getToken(t, teacher), []byte(`{"name":"Intro"}`))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})
}

func Test_moduleApi_update(t *testing.T) {
	courseID := 102
	teacher := createUser(t, "Update Teacher", "updateteacher", "uteacher@test.cd", user.TeacherRoles, true)
	m1 := createModule(t, courseID, "Week 1", false)
	m2 := createModule(t, courseID, "Week 2", false)
	token := getToken(t, teacher)

	path := func(id int) string { return modulesPath(courseID) + "/" + strconv.Itoa(id) }

	// publish + rename
	body := marchallObj(t, map[string]interface{}{"name": "Week One", "publish": true})
	req, rec := newAuthRequest(http.MethodPut, path(m1.ID), token, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var mod course.Module
	if err := json.Unmarshal(rec.Body.Bytes(), &mod); err != nil {
		t.Fatalf("unmarshalling module: %v", err)
	}
	if mod.Name != "Week One" || mod.WorkflowState != course.WorkflowActive {
		t.Errorf("failed! module = %v", rec.Body.String())
	}

	// m2 depends on m1
	body = marchallObj(t, map[string]interface{}{"prerequisite_module_ids": []int{m1.ID}})
	req, rec = newAuthRequest(http.MethodPut, path(m2.ID), token, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}

	// the reverse edge would close a cycle
	body = marchallObj(t, map[string]interface{}{"prerequisite_module_ids": []int{m2.ID}})
	req, rec = newAuthRequest(http.MethodPut, path(m1.ID), token, body)
	app.ServeHTTP(rec, req)
	cycle := fmt.Sprintf("prerequisite cycle: %d -> %d -> %d", m1.ID, m2.ID, m1.ID)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"prerequisite_module_ids": cycle}),
	}, rec)

	// self-reference
	body = marchallObj(t, map[string]interface{}{"prerequisite_module_ids": []int{m1.ID}})
	req, rec = newAuthRequest(http.MethodPut, path(m1.ID), token, body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"prerequisite_module_ids": "a module cannot be its own prerequisite"}),
	}, rec)

	// unknown module
	req, rec = newAuthRequest(http.MethodPut, path(12345), token, []byte(`{"name":"Ghost"}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusNotFound,
		wantData: marchallObj(t, httpErr{Error: "module not found"}),
	}, rec)
}

func Test_moduleApi_batchUpdate(t *testing.T) {
	courseID := 103
	teacher := createUser(t, "Batch Teacher", "batchteacher", "bteacher@test.cd", user.TeacherRoles, true)
	m1 := createModule(t, courseID, "Week 1", false)
	m2 := createModule(t, courseID, "Week 2", false)
	token := getToken(t, teacher)

	id1, id2 := strconv.Itoa(m1.ID), strconv.Itoa(m2.ID)

	tests := []httpTest{
		{
			name: "Event required", body: []byte(`{"module_ids":["` + id1 + `"]}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"event": "this field is required"}),
		},
		{
			name: "Invalid event", body: []byte(`{"event":"explode","module_ids":["` + id1 + `"]}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"event": "event must be one of publish, unpublish, delete"}),
		},
		{
			name: "Module ids required", body: []byte(`{"event":"publish"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"module_ids": "this field is required"}),
		},
		{
			name: "Garbage tokens are dropped", body: []byte(`{"event":"publish","module_ids":["lolcats","abc123","` + id1 + `","` + id2 + `"]}`),
			wantCode: http.StatusOK, wantData: marchallObj(t, map[string][]int{"completed": {m1.ID, m2.ID}}),
		},
		{
			name: "No module acted on", body: []byte(`{"event":"publish","module_ids":["lolcats","98765"]}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "module not found"}),
		},
		{
			name: "Unpublish", body: []byte(`{"event":"unpublish","module_ids":["` + id2 + `"]}`),
			wantCode: http.StatusOK, wantData: marchallObj(t, map[string][]int{"completed": {m2.ID}}),
		},
		{
			name: "Delete", body: []byte(`{"event":"delete","module_ids":["` + id2 + `"]}`),
			wantCode: http.StatusOK, wantData: marchallObj(t, map[string][]int{"completed": {m2.ID}}),
		},
		{
			name: "Deleted modules cannot be updated again", body: []byte(`{"event":"publish","module_ids":["` + id2 + `"]}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "module not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, modulesPath(courseID), token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_moduleApi_query(t *testing.T) {
	courseID := 104
	teacher := createUser(t, "Query Teacher", "queryteacher", "qteacher@test.cd", user.TeacherRoles, true)
	learner := createUser(t, "Query Learner", "querylearner", "qlearner@test.cd", user.StudentRoles, true)
	published := createModule(t, courseID, "Published", true)
	createModule(t, courseID, "Draft", false)

	type moduleRes struct {
		course.Module
		Progress *course.Progress `json:"progress"`
	}
	listModules := func(t *testing.T, token string) []moduleRes {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, modulesPath(courseID), token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var res []moduleRes
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling modules: %v", err)
		}
		return res
	}

	// managers see drafts, without progress
	res := listModules(t, getToken(t, teacher))
	if len(res) != 2 || res[0].Progress != nil {
		t.Errorf("failed! modules = %v", res)
	}

	// learners only see published modules, decorated with their progress
	res = listModules(t, getToken(t, learner))
	if len(res) != 1 || res[0].ID != published.ID {
		t.Fatalf("failed! modules = %v", res)
	}
	if res[0].Progress == nil || res[0].Progress.State != course.ProgressCompleted {
		t.Errorf("failed! progress = %+v", res[0].Progress)
	}

	// learners get 404 on a draft module
	req, rec := newAuthRequest(http.MethodGet, modulesPath(courseID)+"/"+strconv.Itoa(published.ID+1), getToken(t, learner))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
}

func Test_moduleApi_items(t *testing.T) {
	courseID := 105
	teacher := createUser(t, "Items Teacher", "itemsteacher", "iteacher@test.cd", user.TeacherRoles, true)
	learner := createUser(t, "Items Learner", "itemslearner", "ilearner@test.cd", user.StudentRoles, true)
	mod := createModule(t, courseID, "Week 1", true)
	token := getToken(t, teacher)

	itemsPath := modulesPath(courseID) + "/" + strconv.Itoa(mod.ID) + "/items"

	// content_id is required for content-backed items
	req, rec := newAuthRequest(http.MethodPost, itemsPath, token, []byte(`{"type":"assignment","title":"Essay"}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"content_id": "this field is required"}),
	}, rec)

	// students cannot add items
	req, rec = newAuthRequest(http.MethodPost, itemsPath, getToken(t, learner), []byte(`{"type":"sub_header","title":"Part 1"}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)

	addItem := func(t *testing.T, body string) course.Item {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, itemsPath, token, []byte(body))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var item course.Item
		if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
			t.Fatalf("unmarshalling item: %v", err)
		}
		return item
	}
	header := addItem(t, `{"type":"sub_header","title":"Part 1"}`)
	essay := addItem(t, `{"type":"assignment","title":"Essay","content_id":77}`)
	if header.Position != 1 || essay.Position != 2 {
		t.Errorf("failed! positions = %d, %d", header.Position, essay.Position)
	}

	// the essay must be viewed to complete the module
	body := marchallObj(t, map[string]interface{}{
		"completion_requirements": []course.Requirement{{ItemID: essay.ID, Kind: course.MustView}},
	})
	req, rec = newAuthRequest(http.MethodPut, modulesPath(courseID)+"/"+strconv.Itoa(mod.ID), token, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}

	// sub-headers cannot carry requirements
	body = marchallObj(t, map[string]interface{}{
		"completion_requirements": []course.Requirement{{ItemID: header.ID, Kind: course.MustView}},
	})
	req, rec = newAuthRequest(http.MethodPut, modulesPath(courseID)+"/"+strconv.Itoa(mod.ID), token, body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"completion_requirements": "sub-headers cannot carry requirements"}),
	}, rec)

	// learners get per-item access flags
	type itemRes struct {
		course.Item
		Accessible *bool `json:"accessible"`
	}
	req, rec = newAuthRequest(http.MethodGet, itemsPath, getToken(t, learner))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var items []itemRes
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("unmarshalling items: %v", err)
	}
	if len(items) != 2 || items[0].Accessible == nil || !*items[0].Accessible {
		t.Errorf("failed! items = %v", rec.Body.String())
	}
}

func Test_moduleApi_interactions(t *testing.T) {
	courseID := 106
	teacher := createUser(t, "Facts Teacher", "factsteacher", "fteacher@test.cd", user.TeacherRoles, true)
	learner := createUser(t, "Facts Learner", "factslearner", "flearner@test.cd", user.StudentRoles, true)
	mod := createModule(t, courseID, "Graded Week", false)

	ctx := context.Background()
	quiz, err := courseSvc.AddItem(ctx, courseID, mod.ID, course.NewItem{
		Type: course.ContentQuiz, ContentID: null.IntFrom(88), Title: "Final Quiz",
	})
	if err != nil {
		t.Fatalf("AddItem(): %v", err)
	}
	_, err = courseSvc.Update(ctx, courseID, mod.ID, course.UpdateModule{
		Requirements: &[]course.Requirement{{ItemID: quiz.ID, Kind: course.MinScore, MinScoreValue: null.Float64From(70)}},
		Publish:      null.BoolFrom(true),
	})
	if err != nil {
		t.Fatalf("Update(): %v", err)
	}

	token := getToken(t, learner)
	contentPath := fmt.Sprintf("/v1/courses/%d/content/quiz/88", courseID)
	moduleProgress := func(t *testing.T) course.Progress {
		t.Helper()
		prog, err := engine.ModuleProgress(ctx, courseID, learner.ID, mod.ID)
		if err != nil {
			t.Fatalf("ModuleProgress(): %v", err)
		}
		return prog
	}

	// unknown actions are rejected
	req, rec := newAuthRequest(http.MethodPost, contentPath+"/actions", token, []byte(`{"action":"pondered"}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}

	// a failing score starts the module without completing it
	req, rec = newAuthRequest(http.MethodPost, contentPath+"/score", token, []byte(`{"score":55}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	if prog := moduleProgress(t); prog.State != course.ProgressUnlocked {
		t.Errorf("failed! state = %v", prog.State)
	}

	// reaching the threshold completes it
	req, rec = newAuthRequest(http.MethodPost, contentPath+"/score", token, []byte(`{"score":85}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	prog := moduleProgress(t)
	if prog.State != course.ProgressCompleted || !prog.CompletedAt.Valid {
		t.Errorf("failed! progress = %+v", prog)
	}

	// teacher-recorded interactions for content with no module item are a no-op
	req, rec = newAuthRequest(http.MethodPost, fmt.Sprintf("/v1/courses/%d/content/page/999/actions", courseID), getToken(t, teacher), []byte(`{"action":"viewed"}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
}
