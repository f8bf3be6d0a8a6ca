package cluster

import "math"

// merge records one agglomeration step. a and b index either original
// points (0..n-1) or the cluster created at step s (n+s).
type merge struct {
	a, b     int
	distance float64
	size     int
}

// sqDistances returns the full matrix of squared Euclidean distances.
func sqDistances(points [][]float64) [][]float64 {
	n := len(points)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var s float64
			for k := range points[i] {
				diff := points[i][k] - points[j][k]
				s += diff * diff
			}
			d[i][j], d[j][i] = s, s
		}
	}
	return d
}

// wardLinkage agglomerates n points using Ward's criterion with the
// Lance-Williams update on squared distances. Merge distances are reported
// as Euclidean. Ties go to the lowest pair of slot indices.
func wardLinkage(points [][]float64) []merge {
	n := len(points)
	if n < 2 {
		return nil
	}
	d := sqDistances(points)

	// slot i holds the cluster currently identified by id[i].
	id := make([]int, n)
	size := make([]int, n)
	alive := make([]bool, n)
	for i := range id {
		id[i], size[i], alive[i] = i, 1, true
	}

	merges := make([]merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if alive[j] && d[i][j] < best {
					best, bi, bj = d[i][j], i, j
				}
			}
		}

		ni, nj := float64(size[bi]), float64(size[bj])
		for k := 0; k < n; k++ {
			if !alive[k] || k == bi || k == bj {
				continue
			}
			nk := float64(size[k])
			v := ((ni+nk)*d[bi][k] + (nj+nk)*d[bj][k] - nk*best) / (ni + nj + nk)
			d[bi][k], d[k][bi] = v, v
		}

		merges = append(merges, merge{a: id[bi], b: id[bj], distance: math.Sqrt(best), size: size[bi] + size[bj]})
		id[bi] = n + step
		size[bi] += size[bj]
		alive[bj] = false
	}
	return merges
}

// cutTree labels points by applying only merges at or below threshold.
// Labels are dense and numbered in order of first appearance.
func cutTree(merges []merge, n int, threshold float64) []int {
	parent := make([]int, n+len(merges))
	for i := range parent {
		parent[i] = i
	}
	var root func(int) int
	root = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for s, m := range merges {
		node := n + s
		if m.distance > threshold {
			continue
		}
		parent[root(m.a)] = node
		parent[root(m.b)] = node
	}

	labels := make([]int, n)
	seen := make(map[int]int)
	for i := 0; i < n; i++ {
		r := root(i)
		l, ok := seen[r]
		if !ok {
			l = len(seen)
			seen[r] = l
		}
		labels[i] = l
	}
	return labels
}
