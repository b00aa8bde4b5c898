package client

import (
	"context"
	"encoding/json"
	"testing"
)

// BenchmarkClient_BuildRequest benchmarks HTTP request construction.
func BenchmarkClient_BuildRequest(b *testing.B) {
	c, _ := NewOpenWeatherClient(Options{APIKey: testAPIKey})
	ctx := context.Background()
	params := coordParams(17.6868, 83.2185)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.buildRequest(ctx, "/weather", params)
	}
}

// BenchmarkClient_ParseForecast benchmarks decoding a forecast payload.
func BenchmarkClient_ParseForecast(b *testing.B) {
	body, _ := json.Marshal(owmForecastFixture(40))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var resp owmForecastResponse
		_ = json.Unmarshal(body, &resp)
	}
}

// BenchmarkClient_MapResponse benchmarks normalizing a full 5 day forecast.
func BenchmarkClient_MapResponse(b *testing.B) {
	c, _ := NewOpenWeatherClient(Options{APIKey: testAPIKey})
	var cur owmCurrentResponse
	var fc owmForecastResponse
	curBody, _ := json.Marshal(owmCurrentFixture())
	fcBody, _ := json.Marshal(owmForecastFixture(40))
	_ = json.Unmarshal(curBody, &cur)
	_ = json.Unmarshal(fcBody, &fc)
	q := Query{Lat: 17.6868, Lon: 83.2185, TimezoneName: "Asia/Kolkata"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.mapResponse(q, cur, fc)
	}
}

