package landmark

// FaceMesh landmark indices used for gesture metrics.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
//
// Eye groups are ordered lateral corner, two upper-lid points, medial corner,
// two lower-lid points, so that p1/p5 and p2/p4 are vertical pairs.
var (
	RightEye = [6]int{33, 160, 158, 133, 153, 144}
	LeftEye  = [6]int{362, 385, 387, 263, 373, 380}

	UpperLip = []int{61, 185, 40, 39, 37, 0, 267, 269, 270, 409, 291, 308, 415, 310, 311, 312, 13, 82, 81, 80, 191, 78}
	LowerLip = []int{78, 95, 88, 178, 87, 14, 317, 402, 318, 324, 308, 291, 375, 321, 405, 314, 17, 84, 181, 91, 146, 61}

	NoseTip = []int{1, 4, 5}
)

// Mouth corners shared by the upper and lower lip groups, split by image side.
var (
	mouthCornersLeft  = map[int]bool{61: true, 78: true}
	mouthCornersRight = map[int]bool{291: true, 308: true}
)
