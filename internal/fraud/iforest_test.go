package fraud_test

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/fraud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trainingRows generates office-hours logins from a single /24 network
func trainingRows(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC) // Monday
	rows := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		ts := base.AddDate(0, 0, rng.Intn(5)).Add(time.Duration(9+rng.Intn(9)) * time.Hour)
		email := "user" + string(rune('a'+rng.Intn(26))) + "@example.com"
		ip := "192.168.1." + strconv.Itoa(rng.Intn(256))
		rows = append(rows, fraud.Extract(email, ip, "Mozilla/5.0", ts).Slice())
	}
	return rows
}

func typicalVector() fraud.FeatureVector {
	return fraud.Extract("userm@example.com", "192.168.1.128", "Mozilla/5.0", time.Date(2025, 3, 19, 13, 0, 0, 0, time.UTC))
}

func anomalousVector() fraud.FeatureVector {
	return fraud.Extract("a-very-long-throwaway-address-0001@disposable-mail.example", "45.33.12.7", "", time.Date(2025, 3, 23, 3, 0, 0, 0, time.UTC))
}

func TestIsolationForest_OutlierScoresLower(t *testing.T) {
	forest := fraud.NewIsolationForest(fraud.DefaultIsolationForestConfig())

	model, err := forest.Fit(trainingRows(300, 1))
	require.NoError(t, err)

	typicalRaw, typicalOutlier := model.Decision(typicalVector().Slice())
	anomalousRaw, anomalousOutlier := model.Decision(anomalousVector().Slice())

	assert.Less(t, anomalousRaw, typicalRaw)
	assert.True(t, anomalousOutlier)
	assert.False(t, typicalOutlier)
}

func TestIsolationForest_SameSeedSameModel(t *testing.T) {
	rows := trainingRows(200, 7)
	forest := fraud.NewIsolationForest(fraud.DefaultIsolationForestConfig())

	first, err := forest.Fit(rows)
	require.NoError(t, err)
	second, err := forest.Fit(rows)
	require.NoError(t, err)

	for _, v := range []fraud.FeatureVector{typicalVector(), anomalousVector()} {
		a, _ := first.Decision(v.Slice())
		b, _ := second.Decision(v.Slice())
		assert.Equal(t, a, b)
	}
}

func TestIsolationForest_ContaminationShareFlagged(t *testing.T) {
	rows := trainingRows(500, 3)
	forest := fraud.NewIsolationForest(fraud.DefaultIsolationForestConfig())

	model, err := forest.Fit(rows)
	require.NoError(t, err)

	flagged := 0
	for _, row := range rows {
		if _, outlier := model.Decision(row); outlier {
			flagged++
		}
	}
	// Duplicate rows share scores, so the share is only approximately 10%.
	assert.LessOrEqual(t, flagged, 75)
}

func TestIsolationForest_DecodeRestoresModel(t *testing.T) {
	forest := fraud.NewIsolationForest(fraud.DefaultIsolationForestConfig())
	model, err := forest.Fit(trainingRows(200, 11))
	require.NoError(t, err)

	data, err := model.MarshalBinary()
	require.NoError(t, err)

	restored, err := forest.Decode(data)
	require.NoError(t, err)

	wantRaw, wantOutlier := model.Decision(anomalousVector().Slice())
	gotRaw, gotOutlier := restored.Decision(anomalousVector().Slice())
	assert.Equal(t, wantRaw, gotRaw)
	assert.Equal(t, wantOutlier, gotOutlier)
}

func TestIsolationForest_FitErrors(t *testing.T) {
	forest := fraud.NewIsolationForest(fraud.DefaultIsolationForestConfig())

	_, err := forest.Fit(nil)
	assert.Error(t, err)

	_, err = forest.Fit([][]float64{{1, 2}, {1}})
	assert.Error(t, err)
}

func TestIsolationForest_DecodeGarbage(t *testing.T) {
	forest := fraud.NewIsolationForest(fraud.DefaultIsolationForestConfig())

	_, err := forest.Decode([]byte("not a model"))
	assert.Error(t, err)
}
