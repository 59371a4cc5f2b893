package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notevault/internal/application"
)

func TestStoreProvider_GetReturnsInitialStore(t *testing.T) {
	store := newMemoryStore()
	provider := application.NewStoreProvider(store, "memory")

	assert.Same(t, store, provider.Get())
	assert.Equal(t, "memory", provider.Backend())
}

func TestStoreProvider_ReplaceSwapsStore(t *testing.T) {
	original := newMemoryStore()
	replacement := newMemoryStore()

	provider := application.NewStoreProvider(original, "sqlite")
	assert.Same(t, original, provider.Get())

	provider.Replace(replacement, "github")
	assert.Same(t, replacement, provider.Get())
	assert.Equal(t, "github", provider.Backend())
}

func TestStoreProvider_HasStoreReturnsFalseForNil(t *testing.T) {
	provider := application.NewStoreProvider(nil, "")

	require.False(t, provider.HasStore())

	provider.Replace(newMemoryStore(), "github")

	require.True(t, provider.HasStore())
}

func TestStoreProvider_ConcurrentGetReplaceSafety(t *testing.T) {
	store1 := newMemoryStore()
	store2 := newMemoryStore()
	provider := application.NewStoreProvider(store1, "a")

	const goroutines = 100
	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	// Half the goroutines read, half write.
	for range goroutines {
		go func() {
			defer wg.Done()
			assert.NotNil(t, provider.Get())
		}()
		go func() {
			defer wg.Done()
			provider.Replace(store2, "b")
		}()
	}

	wg.Wait()

	assert.Same(t, store2, provider.Get())
}
