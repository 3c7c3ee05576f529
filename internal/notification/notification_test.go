/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhook = "https://hooks.slack.com/services/T000/B000/XXX"

func TestSlackMessageIsValidJSON(t *testing.T) {
	msg := slackMessage("bankrec", errors.New(`line "stl_1" failed`), time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC))

	var decoded struct {
		Blocks []map[string]interface{} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(msg, &decoded))
	assert.Len(t, decoded.Blocks, 3)
	assert.Contains(t, string(msg), `line \"stl_1\" failed`)
}

func TestSlackNotification_PostsToWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var body string
	httpmock.RegisterResponder("POST", webhook, func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	err := SlackNotification(context.Background(), webhook, "bankrec", errors.New("auto-reconciliation failed"))
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Contains(t, body, "auto-reconciliation failed")
	assert.Contains(t, body, "Error From bankrec")
}

func TestSlackNotification_WebhookRejects(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", webhook, httpmock.NewStringResponder(http.StatusNotFound, "no_service"))

	err := SlackNotification(context.Background(), webhook, "bankrec", errors.New("boom"))
	assert.ErrorContains(t, err, "no_service")
}
