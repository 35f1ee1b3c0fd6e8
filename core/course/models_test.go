package course

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

func positions(mods []Module) map[int]int {
	res := make(map[int]int, len(mods))
	for _, mod := range mods {
		if !mod.IsDeleted() {
			res[mod.ID] = mod.Position
		}
	}
	return res
}

func activeMods(ids ...int) []Module {
	mods := make([]Module, 0, len(ids))
	for i, id := range ids {
		mods = append(mods, Module{ID: id, Position: i + 1, WorkflowState: WorkflowActive})
	}
	return mods
}

func TestRenumber(t *testing.T) {
	tests := []struct {
		name string
		mods []Module
		want map[int]int
	}{
		{name: "empty", mods: nil, want: map[int]int{}},
		{
			name: "already contiguous",
			mods: activeMods(1, 2, 3),
			want: map[int]int{1: 1, 2: 2, 3: 3},
		},
		{
			name: "gaps are closed",
			mods: []Module{
				{ID: 1, Position: 2, WorkflowState: WorkflowActive},
				{ID: 2, Position: 5, WorkflowState: WorkflowActive},
				{ID: 3, Position: 9, WorkflowState: WorkflowActive},
			},
			want: map[int]int{1: 1, 2: 2, 3: 3},
		},
		{
			name: "deleted modules are skipped",
			mods: []Module{
				{ID: 1, Position: 1, WorkflowState: WorkflowActive},
				{ID: 2, Position: 2, WorkflowState: WorkflowDeleted},
				{ID: 3, Position: 3, WorkflowState: WorkflowActive},
			},
			want: map[int]int{1: 1, 3: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Renumber(tt.mods)
			assert.Equal(t, tt.want, positions(tt.mods))
		})
	}
}

func Test_moveToPosition(t *testing.T) {
	tests := []struct {
		name  string
		id    int
		pos   int
		found bool
		want  map[int]int
	}{
		{name: "unknown id", id: 42, pos: 1, found: false, want: map[int]int{1: 1, 2: 2, 3: 3, 4: 4}},
		{name: "move forward", id: 1, pos: 3, found: true, want: map[int]int{1: 3, 2: 1, 3: 2, 4: 4}},
		{name: "move backward", id: 4, pos: 2, found: true, want: map[int]int{1: 1, 2: 3, 3: 4, 4: 2}},
		{name: "no-op", id: 2, pos: 2, found: true, want: map[int]int{1: 1, 2: 2, 3: 3, 4: 4}},
		{name: "clamped low", id: 3, pos: -5, found: true, want: map[int]int{1: 2, 2: 3, 3: 1, 4: 4}},
		{name: "clamped high", id: 2, pos: 100, found: true, want: map[int]int{1: 1, 2: 4, 3: 2, 4: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mods := activeMods(1, 2, 3, 4)
			assert.Equal(t, tt.found, moveToPosition(mods, tt.id, tt.pos))
			assert.Equal(t, tt.want, positions(mods))
		})
	}
}

func Test_moveToPosition_skipsDeleted(t *testing.T) {
	mods := activeMods(1, 2, 3, 4)
	mods[1].WorkflowState = WorkflowDeleted
	Renumber(mods) // {1: 1, 3: 2, 4: 3}

	require.True(t, moveToPosition(mods, 1, 3))
	assert.Equal(t, map[int]int{1: 3, 3: 1, 4: 2}, positions(mods))
}

func TestClampPosition(t *testing.T) {
	assert.Equal(t, 1, ClampPosition(-1, 5))
	assert.Equal(t, 1, ClampPosition(0, 5))
	assert.Equal(t, 3, ClampPosition(3, 5))
	assert.Equal(t, 5, ClampPosition(9, 5))
}

func Test_validateRequirements(t *testing.T) {
	score := null.Float64From(80)
	tests := []struct {
		name    string
		reqs    []Requirement
		wantErr bool
	}{
		{name: "empty", reqs: nil},
		{name: "valid mix", reqs: []Requirement{
			{ItemID: 1, Kind: MustView},
			{ItemID: 2, Kind: MustSubmit},
			{ItemID: 3, Kind: MustContribute},
			{ItemID: 4, Kind: MinScore, MinScoreValue: score},
		}},
		{name: "duplicate item", reqs: []Requirement{
			{ItemID: 1, Kind: MustView},
			{ItemID: 1, Kind: MustSubmit},
		}, wantErr: true},
		{name: "min_score without threshold", reqs: []Requirement{{ItemID: 1, Kind: MinScore}}, wantErr: true},
		{name: "threshold on must_view", reqs: []Requirement{{ItemID: 1, Kind: MustView, MinScoreValue: score}}, wantErr: true},
		{name: "unknown kind", reqs: []Requirement{{ItemID: 1, Kind: "must_dance"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequirements(tt.reqs)
			if tt.wantErr {
				assert.IsType(t, &core.ValidationError{}, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    NewItem
		wantErr bool
	}{
		{name: "assignment", item: NewItem{Type: ContentAssignment, ContentID: null.IntFrom(7), Title: "HW 1"}},
		{name: "assignment without content", item: NewItem{Type: ContentAssignment, Title: "HW 1"}, wantErr: true},
		{name: "sub-header", item: NewItem{Type: ContentSubHeader, Title: "Week 1"}},
		{name: "sub-header with content", item: NewItem{Type: ContentSubHeader, ContentID: null.IntFrom(7)}, wantErr: true},
		{name: "external url", item: NewItem{Type: ContentExternalURL, URL: "https://example.com"}},
		{name: "external url missing", item: NewItem{Type: ContentExternalURL}, wantErr: true},
		{name: "unknown type", item: NewItem{Type: "hologram", ContentID: null.IntFrom(7)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateModule_Validate(t *testing.T) {
	blank := UpdateModule{Name: null.StringFrom("   ")}
	assert.Error(t, blank.Validate())

	both := UpdateModule{Publish: null.BoolFrom(true), Unpublish: null.BoolFrom(true)}
	assert.Error(t, both.Validate())

	reqs := []Requirement{{ItemID: 1, Kind: MinScore}}
	bad := UpdateModule{Requirements: &reqs}
	assert.Error(t, bad.Validate())

	ok := UpdateModule{Name: null.StringFrom("Week 2"), Publish: null.BoolFrom(true)}
	assert.NoError(t, ok.Validate())
}
