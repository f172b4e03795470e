package tokencache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryExtractFromJSONBody(t *testing.T) {
	c := New()
	c.TryExtract(`{"actionRequest":"12345","currentCityId":"987"}`)
	assert.Equal(t, "12345", c.CSRF())
	assert.Equal(t, "987", c.CityID())
}

func TestTryExtractFromHTMLBody(t *testing.T) {
	c := New()
	c.TryExtract(`<input type="hidden" name="actionRequest" value="555">` +
		`<script>var currentCityId = "42";</script>`)
	assert.Equal(t, "555", c.CSRF())
	assert.Equal(t, "42", c.CityID())
}

func TestTryExtractUpdatesOnlyWhatItFinds(t *testing.T) {
	c := New()
	c.TryExtract(`{"actionRequest":"111","currentCityId":"1"}`)
	c.TryExtract(`no tokens in this page at all`)
	assert.Equal(t, "111", c.CSRF())
	assert.Equal(t, "1", c.CityID())
}

func TestTryExtractPartialUpdate(t *testing.T) {
	c := New()
	c.TryExtract(`{"actionRequest":"111","currentCityId":"1"}`)
	c.TryExtract(`{"actionRequest":"222"}`)
	assert.Equal(t, "222", c.CSRF())
	assert.Equal(t, "1", c.CityID())
}

func TestInvalidateCSRFClearsOnlyToken(t *testing.T) {
	c := New()
	c.TryExtract(`{"actionRequest":"111","currentCityId":"1"}`)
	c.InvalidateCSRF()
	assert.Empty(t, c.CSRF())
	assert.Equal(t, "1", c.CityID())
}

func TestExportRestoreRoundTrips(t *testing.T) {
	c := New()
	c.TryExtract(`{"actionRequest":"111","currentCityId":"1"}`)
	snap := c.Export()

	restored := New()
	restored.Restore(snap)
	assert.Equal(t, "111", restored.CSRF())
	assert.Equal(t, "1", restored.CityID())
}
