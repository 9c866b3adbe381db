package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDismissRequestAcceptsAllForms(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantIDs []int64
		wantAll bool
	}{
		{"single id", `{"alert_id": 7}`, []int64{7}, false},
		{"id list", `{"alert_ids": [3, 4]}`, []int64{3, 4}, false},
		{"single and list combined", `{"alert_id": 7, "alert_ids": [3]}`, []int64{3, 7}, false},
		{"full sweep", `{"dismiss_all": true}`, nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req dismissRequest
			require.NoError(t, json.Unmarshal([]byte(tc.body), &req))
			assert.Equal(t, tc.wantIDs, req.targetIDs())
			assert.Equal(t, tc.wantAll, req.DismissAll)
		})
	}
}

func TestDismissRequestEmptyBodySelectsNothing(t *testing.T) {
	var req dismissRequest
	require.NoError(t, json.Unmarshal([]byte(`{}`), &req))
	assert.Empty(t, req.targetIDs())
	assert.False(t, req.DismissAll)
}
