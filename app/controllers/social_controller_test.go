package controllers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowUnfollow(t *testing.T) {
	env := newTestEnv(t, "")
	producer := env.user("productora")
	fan := env.user("fan")
	path := "/api/v1/users/" + producer.ID + "/follow"

	status, body := env.do("POST", path, fan.ID, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, true, body["created"])
	assert.EqualValues(t, 1, body["followers"])

	status, body = env.do("POST", path, fan.ID, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, false, body["created"])
	assert.EqualValues(t, 1, body["followers"])

	status, body = env.do("POST", "/api/v1/users/"+fan.ID+"/follow", fan.ID, nil)
	assert.Equal(t, 400, status)

	status, _ = env.do("POST", "/api/v1/users/00000000-0000-0000-0000-000000000000/follow", fan.ID, nil)
	assert.Equal(t, 404, status)

	status, body = env.do("DELETE", path, fan.ID, nil)
	require.Equal(t, 200, status)
	assert.EqualValues(t, 0, body["followers"])
}

func TestToggleLike(t *testing.T) {
	env := newTestEnv(t, "")
	owner := env.user("productora")
	fan := env.user("fan")
	pack := env.pack(owner.ID, 1000, time.Now())
	path := "/api/v1/packs/" + pack.ID + "/like"

	status, body := env.do("POST", path, fan.ID, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, true, body["liked"])
	assert.EqualValues(t, 1, body["likes"])

	status, body = env.do("POST", path, fan.ID, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, false, body["liked"])
	assert.EqualValues(t, 0, body["likes"])
}

func TestCommentsAreSanitized(t *testing.T) {
	env := newTestEnv(t, "")
	owner := env.user("productora")
	fan := env.user("fan")
	pack := env.pack(owner.ID, 1000, time.Now())
	path := "/api/v1/packs/" + pack.ID + "/comments"

	status, body := env.do("POST", path, fan.ID, map[string]interface{}{"content": `<script>alert(1)</script><b>Temazo</b>`})
	require.Equal(t, 201, status, body)
	assert.Equal(t, "Temazo", body["comment"].(map[string]interface{})["content"])

	status, body = env.do("POST", path, fan.ID, map[string]interface{}{"content": "<i></i>"})
	assert.Equal(t, 400, status)
	assert.Equal(t, "validation_failed", body["error"])

	status, _ = env.do("POST", path, fan.ID, map[string]interface{}{"content": strings.Repeat("a", 1001)})
	assert.Equal(t, 400, status)

	status, body = env.do("GET", path, "", nil)
	require.Equal(t, 200, status)
	comments := body["comments"].([]interface{})
	require.Len(t, comments, 1)
	assert.Equal(t, "fan", comments[0].(map[string]interface{})["user"].(map[string]interface{})["name"])
}
