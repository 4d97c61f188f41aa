package permissions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-authz/warden/internal/shared"
)

func TestParsePermissionType(t *testing.T) {
	for raw, want := range map[string]PermissionType{
		"MODULE":     TypeModule,
		"page":       TypePage,
		" Component ": TypeComponent,
	} {
		got, err := ParsePermissionType(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := ParsePermissionType("FOLDER")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestParseAction(t *testing.T) {
	got, err := ParseAction("execute")
	require.NoError(t, err)
	assert.Equal(t, ActionExecute, got)

	_, err = ParseAction("APPEND")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestActionCovers(t *testing.T) {
	cases := []struct {
		held      Action
		requested Action
		want      bool
	}{
		{ActionRead, ActionRead, true},
		{ActionWrite, ActionRead, true},
		{ActionDelete, ActionRead, true},
		{ActionDelete, ActionWrite, true},
		{ActionRead, ActionWrite, false},
		{ActionWrite, ActionDelete, false},
		{ActionExecute, ActionExecute, true},
		{ActionExecute, ActionRead, false},
		{ActionDelete, ActionExecute, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, tc.held.Covers(tc.requested), "%s covers %s", tc.held, tc.requested)
	}
}

func TestParseResourceKey(t *testing.T) {
	key, err := ParseResourceKey(TypeComponent, "blog.post.editor")
	require.NoError(t, err)
	assert.Equal(t, ResourceKey{Module: "blog", Page: "post", Component: "editor"}, key)
	assert.Equal(t, "blog.post.editor", key.String())

	_, err = ParseResourceKey(TypeModule, "blog.post")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = ParseResourceKey(TypePage, "blog..editor")
	require.Error(t, err)

	_, err = ParseResourceKey(TypeComponent, "")
	require.Error(t, err)
}

func TestPageKey(t *testing.T) {
	page, ok := PageKey("blog.post.editor")
	require.True(t, ok)
	assert.Equal(t, "blog.post", page)

	page, ok = PageKey("blog.post.editor.toolbar")
	require.True(t, ok)
	assert.Equal(t, "blog.post", page)

	_, ok = PageKey("blog.post")
	assert.False(t, ok)

	_, ok = PageKey("blog")
	assert.False(t, ok)
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "PAGE:blog:blog.post", SnapshotKey(TypePage, "blog", "blog.post"))
}
