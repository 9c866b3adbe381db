package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmpulse/database"
)

func TestValidateWebhookRequiresNameAndURL(t *testing.T) {
	err := validateWebhook(&database.AlertWebhook{URL: "https://hooks.example.com/farm"})
	require.Error(t, err)
	var ve *database.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	err = validateWebhook(&database.AlertWebhook{Name: "slack"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "url", ve.Field)

	assert.NoError(t, validateWebhook(&database.AlertWebhook{Name: "slack", URL: "https://hooks.example.com/farm"}))
}
