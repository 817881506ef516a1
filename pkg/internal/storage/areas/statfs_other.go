//go:build !unix

package areas

// freeBytes 在不支持 Statfs 的平台上保守地返回一个大值，
// 许可门在这些平台退化为纯配额检查.
func freeBytes(root string) (int64, error) {
	return int64(1) << 40, nil
}
