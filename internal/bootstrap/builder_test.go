package bootstrap

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseWSUrls(t *testing.T) {
	urls := parseWSUrls(" e1=wss://one.example, e2=wss://two.example ,, malformed")
	assert.Equal(t, "wss://one.example", urls["e1"])
	assert.Equal(t, "wss://two.example", urls["e2"])
	assert.Len(t, urls, 2)
}

func TestParseWSUrlsEmpty(t *testing.T) {
	assert.Empty(t, parseWSUrls(""))
}

func TestSecondsToDuration(t *testing.T) {
	assert.Equal(t, 300*time.Second, secondsToDuration(300))
	assert.Equal(t, time.Duration(0), secondsToDuration(0))
}

func TestBuilder_WithSupervisorFailsWithoutDependencies(t *testing.T) {
	b := NewBuilder()
	b.app.options = &Options{AdminMail: "admin@fullon"}

	b.WithSupervisor(nil)
	assert.Error(t, b.err)

	_, err := b.Build()
	assert.Error(t, err)
}

// TestMain clears os.Args so go-flags parsing inside NewBuilder never
// sees the test binary's own flags.
func TestMain(m *testing.M) {
	os.Args = []string{os.Args[0]}
	os.Exit(m.Run())
}
