package metrics

// primeLadder is the static table used to round hash-index sizes up to a
// prime. Dense for small sizes, then roughly logarithmic steps; the sieve
// utility that produced it is not part of the engine.
var primeLadder = []uint32{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67,
	71, 73, 79, 83, 89, 97, 101, 151, 211, 251, 307, 401, 503, 601, 701,
	809, 907, 1009, 1511, 2003, 2503, 3001, 4001, 5003, 6007, 7001, 8009,
	9001, 10007, 15013, 20011, 30011, 40009, 50021, 60013, 70001, 80021,
	90001, 100003, 150001, 200003, 300007, 400009, 500009, 600011, 700001,
	800011, 900001, 1000003, 1500007, 2000003, 3000017, 4000037, 5000011,
	6000011, 8000009, 10000019, 15000017, 20000003, 30000001, 40000003,
	50000017, 60000011, 80000023, 100000007, 150000001, 200000033,
	300000007, 400000009, 500000003, 700000001, 1000000007, 1500000001,
	2000000011, 3000000019, 4000000007,
}

// NextPrime rounds n up to the next prime of the ladder. Zero stays zero so
// absent sections keep their empty index.
func NextPrime(n uint64) uint32 {
	if n == 0 {
		return 0
	}
	for _, p := range primeLadder {
		if uint64(p) >= n {
			return p
		}
	}
	// beyond the ladder the caller asked for more than the engine supports
	return primeLadder[len(primeLadder)-1]
}

// RaisePercent grows n by the given percentage, used to give metrics
// presets a margin of error.
func RaisePercent(n uint32, percent uint32) uint32 {
	return n + n/100*percent + (n%100*percent)/100
}
