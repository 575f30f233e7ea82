package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgchart/internal/domain"
	"orgchart/internal/errs"
	"orgchart/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

const testAccount = "acct-1"

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T, shape repository.Shape) *Repository {
	t.Helper()
	repo, err := New(":memory:", Options{Shape: shape}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func createNode(t *testing.T, repo *Repository, id, label string) {
	t.Helper()
	_, err := repo.Create(context.Background(), repository.KindNode, repository.Fields{
		repository.FieldAccount: testAccount,
		repository.FieldID:      id,
		repository.FieldLabel:   label,
	})
	require.NoError(t, err)
}

func createLink(t *testing.T, repo *Repository, parent, child string) string {
	t.Helper()
	id, err := repo.Create(context.Background(), repository.KindLink, repository.Fields{
		repository.FieldAccount:  testAccount,
		repository.FieldParentID: parent,
		repository.FieldChildID:  child,
	})
	require.NoError(t, err)
	return id
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToString(t *testing.T) {
	tests := []struct {
		name     string
		input    sql.NullString
		expected string
	}{
		{"valid string", sql.NullString{String: "hello", Valid: true}, "hello"},
		{"null string", sql.NullString{Valid: false}, ""},
		{"valid empty", sql.NullString{String: "", Valid: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, nullToString(tt.input))
		})
	}
}

func TestStringToNull(t *testing.T) {
	assert.False(t, stringToNull("").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, stringToNull("x"))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%`, escapeLike("50%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\d`, escapeLike(`c:\d`))
}

// ============================================================================
// Node and Link Tests
// ============================================================================

func TestCreateNode(t *testing.T) {
	ctx := context.Background()

	t.Run("generates an id", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		id, err := repo.Create(ctx, repository.KindNode, repository.Fields{
			repository.FieldAccount:    testAccount,
			repository.FieldLabel:      "New Person",
			repository.FieldDepartment: "Sales",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		node, err := repo.GetNode(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, "New Person", node.Label)
		assert.Equal(t, domain.OriginPlaceholder, node.Origin)
		assert.Equal(t, "Sales", node.Style.Department)
	})

	t.Run("requires an account", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		_, err := repo.Create(ctx, repository.KindNode, repository.Fields{repository.FieldLabel: "x"})
		assert.True(t, errs.Is(err, errs.KindInvalid))
	})

	t.Run("rejects an unknown record", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		_, err := repo.Create(ctx, repository.KindNode, repository.Fields{
			repository.FieldAccount:   testAccount,
			repository.FieldOrigin:    string(domain.OriginRecord),
			repository.FieldRecordRef: "missing",
		})
		assert.True(t, errs.Is(err, errs.KindNotFound))
	})

	t.Run("rejects an existing id", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		createNode(t, repo, "a", "A")
		_, err := repo.Create(ctx, repository.KindNode, repository.Fields{
			repository.FieldAccount: testAccount,
			repository.FieldID:      "a",
		})
		assert.True(t, errs.Is(err, errs.KindWriteRejected))
	})
}

func TestGetNodeMissing(t *testing.T) {
	repo := newTestRepo(t, repository.ShapeSeparated)
	node, err := repo.GetNode(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestRecordBackedNodeTakesRecordName(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeSeparated)
	require.NoError(t, repo.UpsertRecord(ctx, &domain.Record{
		ID: "r1", AccountID: testAccount, Name: "Ada Lovelace", Department: "Research",
	}))

	id, err := repo.Create(ctx, repository.KindNode, repository.Fields{
		repository.FieldAccount:   testAccount,
		repository.FieldOrigin:    string(domain.OriginRecord),
		repository.FieldRecordRef: "r1",
	})
	require.NoError(t, err)

	node, err := repo.GetNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", node.Label)
	assert.Equal(t, "Research", node.Style.Department)
	assert.False(t, node.IsPlaceholder())
}

func TestCreateLink(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeSeparated)
	createNode(t, repo, "a", "A")
	createNode(t, repo, "b", "B")

	t.Run("endpoints must exist", func(t *testing.T) {
		_, err := repo.Create(ctx, repository.KindLink, repository.Fields{
			repository.FieldAccount:  testAccount,
			repository.FieldParentID: "a",
			repository.FieldChildID:  "ghost",
		})
		assert.True(t, errs.Is(err, errs.KindNotFound))
	})

	t.Run("self links are invalid", func(t *testing.T) {
		_, err := repo.Create(ctx, repository.KindLink, repository.Fields{
			repository.FieldAccount:  testAccount,
			repository.FieldParentID: "a",
			repository.FieldChildID:  "a",
		})
		assert.True(t, errs.Is(err, errs.KindInvalid))
	})

	t.Run("link appears in fetch", func(t *testing.T) {
		id := createLink(t, repo, "a", "b")
		snap, err := repo.Fetch(ctx, testAccount)
		require.NoError(t, err)
		require.Len(t, snap.Links, 1)
		assert.Equal(t, id, snap.Links[0].ID)
		assert.Equal(t, "a", snap.Links[0].ParentID)
		assert.Equal(t, "b", snap.Links[0].ChildID)
		assert.Len(t, snap.Rows, 2)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeSeparated)
	createNode(t, repo, "a", "A")
	createNode(t, repo, "b", "B")
	createNode(t, repo, "c", "C")
	link := createLink(t, repo, "a", "b")

	t.Run("node label and style", func(t *testing.T) {
		err := repo.Update(ctx, repository.KindNode, "a", repository.Fields{
			repository.FieldLabel:     "Alpha",
			repository.FieldFillColor: "#ff0000",
		})
		require.NoError(t, err)
		node, err := repo.GetNode(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Alpha", node.Label)
		assert.Equal(t, "#ff0000", node.Style.FillColor)
	})

	t.Run("unknown field", func(t *testing.T) {
		err := repo.Update(ctx, repository.KindNode, "a", repository.Fields{"salary": "1"})
		assert.True(t, errs.Is(err, errs.KindInvalid))
	})

	t.Run("missing node", func(t *testing.T) {
		err := repo.Update(ctx, repository.KindNode, "zzz", repository.Fields{repository.FieldLabel: "x"})
		assert.True(t, errs.Is(err, errs.KindNotFound))
	})

	t.Run("re-point link", func(t *testing.T) {
		err := repo.Update(ctx, repository.KindLink, link, repository.Fields{repository.FieldChildID: "c"})
		require.NoError(t, err)
		snap, err := repo.Fetch(ctx, testAccount)
		require.NoError(t, err)
		require.Len(t, snap.Links, 1)
		assert.Equal(t, "c", snap.Links[0].ChildID)
	})

	t.Run("re-point to a missing node", func(t *testing.T) {
		err := repo.Update(ctx, repository.KindLink, link, repository.Fields{repository.FieldChildID: "ghost"})
		assert.True(t, errs.Is(err, errs.KindNotFound))
	})
}

func TestChainedLinkCannotBeRepointed(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeSeparated)

	frag := domain.NewGraphFragment()
	frag.AddNode(domain.Row{ID: "a", LinkID: "L1"})
	frag.AddNode(domain.Row{ID: "b", LinkID: "L1"})
	frag.AddNode(domain.Row{ID: "c", LinkID: "L1"})
	frag.AddNode(domain.Row{ID: "d"})
	require.NoError(t, repo.ImportFragment(ctx, testAccount, frag, false))

	err := repo.Update(ctx, repository.KindLink, "L1", repository.Fields{repository.FieldChildID: "d"})
	assert.True(t, errs.Is(err, errs.KindWriteRejected))

	// labels are still writable on every segment
	require.NoError(t, repo.Update(ctx, repository.KindLink, "L1", repository.Fields{repository.FieldLabel: "reports"}))
	snap, err := repo.Fetch(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, snap.Links, 2)
	for _, l := range snap.Links {
		assert.Equal(t, "reports", l.Label)
	}
}

func TestAccountOf(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeSeparated)
	createNode(t, repo, "a", "A")
	createNode(t, repo, "b", "B")
	linkID := createLink(t, repo, "a", "b")

	tests := []struct {
		name string
		kind repository.Kind
		id   string
		want string
	}{
		{"node", repository.KindNode, "a", testAccount},
		{"link", repository.KindLink, linkID, testAccount},
		{"missing node", repository.KindNode, "nope", ""},
		{"missing link", repository.KindLink, "nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.AccountOf(ctx, tt.kind, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		_, err := repo.AccountOf(ctx, repository.Kind("record"), "a")
		assert.True(t, errs.Is(err, errs.KindInvalid))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("link removes every segment", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		frag := domain.NewGraphFragment()
		frag.AddNode(domain.Row{ID: "a", LinkID: "L1"})
		frag.AddNode(domain.Row{ID: "b", LinkID: "L1"})
		frag.AddNode(domain.Row{ID: "c", LinkID: "L1"})
		require.NoError(t, repo.ImportFragment(ctx, testAccount, frag, false))

		require.NoError(t, repo.Delete(ctx, repository.KindLink, "L1"))
		snap, err := repo.Fetch(ctx, testAccount)
		require.NoError(t, err)
		assert.Empty(t, snap.Links)
		assert.Len(t, snap.Rows, 3)
	})

	t.Run("node cascades links and position", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		createNode(t, repo, "a", "A")
		createNode(t, repo, "b", "B")
		createLink(t, repo, "a", "b")
		require.NoError(t, repo.SavePosition(ctx, domain.NodePosition{NodeID: "b", X: 1, Y: 2}))

		require.NoError(t, repo.Delete(ctx, repository.KindNode, "b"))

		snap, err := repo.Fetch(ctx, testAccount)
		require.NoError(t, err)
		assert.Empty(t, snap.Links)
		assert.Len(t, snap.Rows, 1)

		positions, err := repo.GetPositions(ctx, testAccount)
		require.NoError(t, err)
		assert.Empty(t, positions)
	})

	t.Run("missing entity", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		err := repo.Delete(ctx, repository.KindLink, "nope")
		assert.True(t, errs.Is(err, errs.KindNotFound))
	})
}

// ============================================================================
// Fetch Shape Tests
// ============================================================================

func TestFetchRowsShape(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeRows)

	frag := domain.NewGraphFragment()
	frag.AddNode(domain.Row{ID: "a", Label: "A", LinkID: "L1"})
	frag.AddNode(domain.Row{ID: "b", Label: "B", LinkID: "L1"})
	frag.AddNode(domain.Row{ID: "c", Label: "C", LinkID: "L1"})
	frag.AddNode(domain.Row{ID: "d", Label: "D"})
	require.NoError(t, repo.ImportFragment(ctx, testAccount, frag, false))

	snap, err := repo.Fetch(ctx, testAccount)
	require.NoError(t, err)
	assert.Empty(t, snap.Links)

	var ids, links []string
	for _, r := range snap.Rows {
		ids = append(ids, r.ID)
		links = append(links, r.LinkID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, []string{"L1", "L1", "L1", ""}, links)
	assert.Equal(t, "B", snap.Rows[1].Label)
}

func TestMembershipSnapshotKeepsBrokenChainsExplicit(t *testing.T) {
	nodes := []domain.Row{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	links := []domain.Link{
		{ID: "L1", Ordinal: 0, ParentID: "a", ChildID: "b"},
		{ID: "L1", Ordinal: 1, ParentID: "c", ChildID: "d"},
		{ID: "L2", Ordinal: 0, ParentID: "b", ChildID: "c"},
	}

	snap := membershipSnapshot(testAccount, nodes, links)

	require.Len(t, snap.Links, 2)
	assert.Equal(t, "L1", snap.Links[0].ID)
	var chained []string
	for _, r := range snap.Rows {
		if r.LinkID == "L2" {
			chained = append(chained, r.ID)
		}
	}
	assert.Equal(t, []string{"b", "c"}, chained)
	assert.Len(t, snap.Rows, 4, "two chained rows plus the unlinked a and d")
}

func TestFetchScopesByAccount(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeSeparated)
	createNode(t, repo, "a", "A")
	_, err := repo.Create(ctx, repository.KindNode, repository.Fields{
		repository.FieldAccount: "other",
		repository.FieldID:      "z",
	})
	require.NoError(t, err)

	snap, err := repo.Fetch(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "a", snap.Rows[0].ID)
}

// ============================================================================
// Record Tests
// ============================================================================

func TestSearchRecords(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeSeparated)
	for _, rec := range []domain.Record{
		{ID: "1", AccountID: testAccount, Name: "Maria Lopez"},
		{ID: "2", AccountID: testAccount, Name: "Mark Twain"},
		{ID: "3", AccountID: testAccount, Name: "Omar Khayyam"},
		{ID: "4", AccountID: "other", Name: "Marge Simpson"},
		{ID: "5", AccountID: testAccount, Name: "100% Marble"},
	} {
		rec := rec
		require.NoError(t, repo.UpsertRecord(ctx, &rec))
	}

	t.Run("prefix matches rank first", func(t *testing.T) {
		got, err := repo.SearchRecords(ctx, testAccount, "mar", 10)
		require.NoError(t, err)
		var names []string
		for _, r := range got {
			names = append(names, r.Name)
		}
		assert.Equal(t, []string{"Maria Lopez", "Mark Twain", "100% Marble", "Omar Khayyam"}, names)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := repo.SearchRecords(ctx, testAccount, "mar", 1)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("wildcards match literally", func(t *testing.T) {
		got, err := repo.SearchRecords(ctx, testAccount, "0%", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "5", got[0].ID)
	})

	t.Run("upsert updates", func(t *testing.T) {
		require.NoError(t, repo.UpsertRecord(ctx, &domain.Record{ID: "3", AccountID: testAccount, Name: "Omar K."}))
		got, err := repo.SearchRecords(ctx, testAccount, "omar", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Omar K.", got[0].Name)
	})
}

// ============================================================================
// Position Tests
// ============================================================================

func TestPositions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, repository.ShapeSeparated)
	createNode(t, repo, "a", "A")

	require.NoError(t, repo.SavePosition(ctx, domain.NodePosition{NodeID: "a", X: 10, Y: 20}))
	require.NoError(t, repo.SavePosition(ctx, domain.NodePosition{NodeID: "a", X: 30, Y: 40, Pinned: true}))

	positions, err := repo.GetPositions(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, domain.NodePosition{NodeID: "a", X: 30, Y: 40, Pinned: true}, positions["a"])

	err = repo.SavePosition(ctx, domain.NodePosition{NodeID: "ghost"})
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

// ============================================================================
// Import / Export Tests
// ============================================================================

func TestImportFragment(t *testing.T) {
	ctx := context.Background()

	t.Run("skips dangling links", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		frag := domain.NewGraphFragment()
		frag.AddNode(domain.Row{ID: "a"})
		frag.AddNode(domain.Row{ID: "b"})
		frag.AddLink(domain.Link{ID: "L1", ParentID: "a", ChildID: "b"})
		frag.AddLink(domain.Link{ID: "L2", ParentID: "a", ChildID: "ghost"})
		require.NoError(t, repo.ImportFragment(ctx, testAccount, frag, false))

		snap, err := repo.Fetch(ctx, testAccount)
		require.NoError(t, err)
		require.Len(t, snap.Links, 1)
		assert.Equal(t, "L1", snap.Links[0].ID)
	})

	t.Run("replace clears the account", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		createNode(t, repo, "old", "Old")

		frag := domain.NewGraphFragment()
		frag.AddNode(domain.Row{ID: "new"})
		require.NoError(t, repo.ImportFragment(ctx, testAccount, frag, true))

		snap, err := repo.Fetch(ctx, testAccount)
		require.NoError(t, err)
		require.Len(t, snap.Rows, 1)
		assert.Equal(t, "new", snap.Rows[0].ID)
	})

	t.Run("merge keeps existing nodes", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		createNode(t, repo, "old", "Old")

		frag := domain.NewGraphFragment()
		frag.AddNode(domain.Row{ID: "new"})
		require.NoError(t, repo.ImportFragment(ctx, testAccount, frag, false))

		snap, err := repo.Fetch(ctx, testAccount)
		require.NoError(t, err)
		assert.Len(t, snap.Rows, 2)
	})

	t.Run("invalid node aborts", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		frag := domain.NewGraphFragment()
		frag.AddNode(domain.Row{ID: "a", Origin: "robot"})
		err := repo.ImportFragment(ctx, testAccount, frag, false)
		assert.True(t, errs.Is(err, errs.KindInvalid))

		snap, err := repo.Fetch(ctx, testAccount)
		require.NoError(t, err)
		assert.Empty(t, snap.Rows)
	})

	t.Run("records last import", func(t *testing.T) {
		repo := newTestRepo(t, repository.ShapeSeparated)
		_, ok, err := repo.LastImport(ctx, testAccount)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.ImportFragment(ctx, testAccount, domain.NewGraphFragment(), false))
		ts, ok, err := repo.LastImport(ctx, testAccount)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, ts.IsZero())
	})
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestRepo(t, repository.ShapeSeparated)

	frag := domain.NewGraphFragment()
	frag.Records = []domain.Record{{ID: "r1", Name: "Grace Hopper", Title: "Rear Admiral"}}
	frag.AddNode(domain.Row{ID: "a", Origin: domain.OriginRecord, RecordRef: "r1", LinkID: "L1"})
	frag.AddNode(domain.Row{ID: "b", Label: "Open Role", LinkID: "L1", Style: domain.Style{Priority: "high"}})
	frag.AddNode(domain.Row{ID: "c", LinkID: "L1"})
	require.NoError(t, src.ImportFragment(ctx, testAccount, frag, false))

	exported, err := src.ExportFragment(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, exported.Records, 1)
	assert.Equal(t, testAccount, exported.Records[0].AccountID)
	require.Len(t, exported.Nodes, 3)
	assert.Equal(t, "high", exported.Nodes[1].Priority)
	require.Len(t, exported.Links, 2)

	dst := newTestRepo(t, repository.ShapeSeparated)
	require.NoError(t, dst.ImportFragment(ctx, testAccount, exported, false))

	want, err := src.Fetch(ctx, testAccount)
	require.NoError(t, err)
	got, err := dst.Fetch(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, want.Rows, got.Rows)
	assert.Equal(t, want.Links, got.Links)
}
