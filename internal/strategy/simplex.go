package strategy

import "sort"

// projectSimplex 将任意实向量做欧氏投影到概率单纯形
// {w : sum(w)=1, w_i>=0} 上。精确的 O(n log n) 算法：
// 降序排序后求累积和，取最大的 ρ 使 sorted[ρ]*(ρ+1) > cumsum[ρ]-1，
// 阈值 θ=(cumsum[ρ]-1)/(ρ+1)，输出 max(v_i-θ, 0)。
func projectSimplex(v []float64) []float64 {
	n := len(v)
	if n == 0 {
		return nil
	}

	sorted := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	// i=0 时条件恒成立，θ 必然被赋值。
	var cumsum float64
	theta := 0.0
	for i := 0; i < n; i++ {
		cumsum += sorted[i]
		if sorted[i]*float64(i+1) > cumsum-1 {
			theta = (cumsum - 1) / float64(i+1)
		}
	}

	res := make([]float64, n)
	for i, x := range v {
		if w := x - theta; w > 0 {
			res[i] = w
		}
	}
	return res
}
