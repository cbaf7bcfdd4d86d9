//go:build !gocv

package analyzer

func defaultContourFinder() ContourFinder {
	return traceFinder{}
}
