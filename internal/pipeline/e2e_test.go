package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pharma-listing-crawler/internal/extract"
	"github.com/JakeFAU/pharma-listing-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/pharma-listing-crawler/internal/fetcher/colly"
)

const panadolListing = `<html><body><div class="products">
	<div class="card">
		<a href="/medicine/panadol-10-1234.html"><img src="/images/panadol.jpg"></a>
		<div class="card-body">
			<a href="/medicine/panadol-10-1234.html"><p>Panadol</p></a>
			<p>Pack Size: 10 tablets</p>
			<h4>Rs 50 <span>Rs 60</span></h4>
			<button>Add to Cart</button>
		</div>
	</div>
</div></body></html>`

const panadolPage = `<html><head><title>Panadol Extra Tablets - Dawaai</title></head><body>
	<h1>Panadol Extra Tablets</h1>
	<div class="product-image"><img src="/media/product/panadol-extra.jpg" alt="Panadol"></div>
	<div class="product-price">Rs 48</div>
	<div class="old-price">Rs 60</div>
	<div class="product-description">
		<strong>Generic:</strong> <a href="/generic/paracetamol-5">Paracetamol</a>
	</div>
</body></html>`

type noopPauser struct{}

func (noopPauser) Pause(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestEndToEndPanadol(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/all-medicines/p", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(panadolListing))
	})
	mux.HandleFunc("/medicine/panadol-10-1234.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(panadolPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := fetcher.New(collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}), fetcher.Config{},
		fetcher.WithPauser(noopPauser{}))
	discoverer, err := extract.NewDiscoverer(srv.URL, extract.NewFieldExtractor(), nil)
	require.NoError(t, err)
	resolver, err := extract.NewDetailResolver(f, srv.URL, nil)
	require.NoError(t, err)
	store := newSpyStore()

	o, err := New(Config{BaseURL: srv.URL}, Dependencies{
		Fetcher:    f,
		Discoverer: discoverer,
		Resolver:   resolver,
		Store:      store,
		Clock:      stubClock{now: time.Now()},
		IDs:        stubIDs{},
		Pauser:     noopPauser{},
	})
	require.NoError(t, err)

	report, err := o.RunLetter(context.Background(), 'p')
	require.NoError(t, err)
	assert.Equal(t, 1, report.CandidatesDiscovered)
	assert.Equal(t, 1, report.NewRecords)
	assert.Zero(t, report.FailedFetchAttempts)

	require.Len(t, store.inserted, 1)
	r := store.inserted[0]
	assert.Equal(t, "panadol-10-1234", r.ExternalID)
	require.NotNil(t, r.CompleteName)
	assert.Equal(t, "Panadol Extra Tablets", *r.CompleteName)
	require.NotNil(t, r.BrandName)
	assert.Equal(t, "Panadol", *r.BrandName)
	require.NotNil(t, r.GenericName)
	assert.Equal(t, "Paracetamol", *r.GenericName)
	require.NotNil(t, r.PackSize)
	assert.Equal(t, "10 tablets", *r.PackSize)
	require.NotNil(t, r.ListingPrice)
	assert.Equal(t, 50.0, *r.ListingPrice)
	require.NotNil(t, r.ListingOriginalPrice)
	assert.Equal(t, 60.0, *r.ListingOriginalPrice)
	require.NotNil(t, r.DetailPrice)
	assert.Equal(t, 48.0, *r.DetailPrice)
	require.NotNil(t, r.DetailOriginalPrice)
	assert.Equal(t, 60.0, *r.DetailOriginalPrice)
	require.NotNil(t, r.GenericRefLink)
	assert.Equal(t, srv.URL+"/generic/paracetamol-5", *r.GenericRefLink)
	assert.Equal(t, srv.URL+"/medicine/panadol-10-1234.html", r.DrugExternalLink)
	assert.Nil(t, r.ImagePath, "no image store configured")
	assert.Empty(t, store.images)
}
