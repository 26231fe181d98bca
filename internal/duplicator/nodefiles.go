package duplicator

import "github.com/lsst/qserv-sub016/internal/partfile"

// inputPath returns the path to source triangle htmId's CSV file under
// inDir, sharded by inNodes.
func inputPath(inDir string, htmID uint32, inNodes int) string {
	return partfile.TrianglePath(inDir, htmID, inNodes, "txt")
}

// parseHtmIDFromPath recovers the source triangle id from an input block
// path of the form .../node_NNNNN/htm_<hex>.txt.
func parseHtmIDFromPath(path string) (uint32, error) {
	return partfile.ParseTrianglePath(path)
}
