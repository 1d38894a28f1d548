package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// RequestDecoratorFunc adds query parameters to a query entities request
type RequestDecoratorFunc func(params url.Values)

func Attributes(attrs ...string) RequestDecoratorFunc {
	return func(params url.Values) {
		params.Set("attrs", strings.Join(attrs, ","))
	}
}

func IDs(ids ...string) RequestDecoratorFunc {
	return func(params url.Values) {
		params.Set("id", strings.Join(ids, ","))
	}
}

func Types(typeNames ...string) RequestDecoratorFunc {
	return func(params url.Values) {
		params.Set("type", strings.Join(typeNames, ","))
	}
}

func IDPattern(pattern string) RequestDecoratorFunc {
	return func(params url.Values) {
		params.Set("idPattern", pattern)
	}
}

func Query(q string) RequestDecoratorFunc {
	return func(params url.Values) {
		params.Set("q", q)
	}
}

func Limit(limit, offset int) RequestDecoratorFunc {
	return func(params url.Values) {
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", strconv.Itoa(offset))
	}
}

// NearPoint limits the query to entities within distance meters from a WGS84 position
func NearPoint(distance int, lat, lon float64) RequestDecoratorFunc {
	return func(params url.Values) {
		params.Set("georel", fmt.Sprintf("near;maxDistance==%d", distance))
		params.Set("geometry", "Point")
		params.Set("coordinates", fmt.Sprintf("[%.6f,%.6f]", lon, lat))
	}
}

func encodeParameters(parameters []RequestDecoratorFunc) string {
	params := url.Values{}
	for _, decorate := range parameters {
		decorate(params)
	}

	if len(params) == 0 {
		return ""
	}

	return "?" + params.Encode()
}
