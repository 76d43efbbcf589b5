package featureflag

type Flag string

const (
	// Traces rays with the grid walk instead of the octree descent.
	FlagDDATraversal Flag = "DDA_TRAVERSAL"

	// Generates missing chunks one at a time.
	FlagSequentialGeneration Flag = "SEQUENTIAL_GENERATION"

	// Stops packing chunk octrees into node buffers.
	FlagDisableChunkUpload Flag = "DISABLE_CHUNK_UPLOAD"

	// Disables voxel writes from viewers and the HTTP API.
	FlagDisableVoxelEdit Flag = "DISABLE_VOXEL_EDIT"
)
