package universe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgriffes/redscan/pkg/httputil"
	"github.com/mgriffes/redscan/pkg/logger"
)

func TestLoadPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.txt")
	require.NoError(t, os.WriteFile(path, []byte("MMM\nAOS\n\nABT\n"), 0o644))

	symbols, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"MMM", "AOS", "ABT"}, symbols)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.txt")
	symbols := []string{"AAPL", "BRK.B", "MSFT"}

	require.NoError(t, Save(path, symbols))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, symbols, loaded)
}

const constituentsHTML = `<html><body>
<table id="constituents" class="wikitable">
<tbody>
<tr><th>Symbol</th><th>Security</th></tr>
<tr><td><a href="/q/MMM">MMM</a></td><td>3M</td></tr>
<tr><td><a href="/q/BRK-B">BRK-B</a></td><td>Berkshire Hathaway</td></tr>
<tr><td><a href="/q/BF-B">BF-B</a></td><td>Brown-Forman</td></tr>
</tbody>
</table>
<table id="changes"><tbody><tr><td>IGNORED</td></tr></tbody></table>
</body></html>`

func TestFetchParsesConstituentsTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, constituentsHTML)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, httputil.New(logger.NewNop()).DisableRetry(), logger.NewNop())
	symbols, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"MMM", "BRK.B", "BF.B"}, symbols)
}

func TestFetchEmptyTableFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>no table here</p></body></html>`)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, httputil.New(logger.NewNop()).DisableRetry(), logger.NewNop())
	_, err := fetcher.Fetch(context.Background())
	assert.Error(t, err)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BRK.B", NormalizeSymbol("BRK-B"))
	assert.Equal(t, "AAPL", NormalizeSymbol("AAPL"))
}
