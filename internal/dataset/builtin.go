package dataset

// DecaySet1 and DecaySet2 are two measurements of the same exponential
// decay, sampled at different times.
func DecaySet1() *Frame {
	return &Frame{
		Header: []string{"time", "x1"},
		Columns: [][]float64{
			{0.0, 0.1, 0.2, 0.4, 0.8, 1.0},
			{2.0, 1.6, 1.2, 0.7, 0.3, 0.15},
		},
	}
}

func DecaySet2() *Frame {
	return &Frame{
		Header: []string{"time", "x2"},
		Columns: [][]float64{
			{0.0, 0.15, 0.25, 0.45, 0.85, 0.95},
			{3.6, 2.25, 1.75, 1.00, 0.35, 0.20},
		},
	}
}

// ThirdOrderData is a decaying response used to fit x''' = a x'' + b x' + c x + d.
func ThirdOrderData() *Frame {
	return &Frame{
		Header: []string{"time", "x"},
		Columns: [][]float64{
			{0, 0.1, 0.2, 0.4, 0.8, 1, 1.5, 2, 2.5, 3, 3.5, 4},
			{2.0, 1.6, 1.2, 0.7, 0.3, 0.15, 0.1, 0.05, 0.03, 0.02, 0.015, 0.01},
		},
	}
}

// BatteryDay holds hourly electricity price, solar production and demand for
// hours 1 through 24.
func BatteryDay() *Frame {
	hours := make([]float64, 24)
	for i := range hours {
		hours[i] = float64(i + 1)
	}
	return &Frame{
		Header: []string{"hour", "price", "pv", "demand"},
		Columns: [][]float64{
			hours,
			{
				0.01874, 0.01865, 0.01892, 0.01896, 0.01837,
				0.02035, 0.02082, 0.02092, 0.02156, 0.02223,
				0.02229, 0.02185, 0.02116, 0.02076, 0.02058,
				0.02088, 0.02413, 0.02374, 0.02304, 0.02174,
				0.02088, 0.02032, 0.01999, 0.01916,
			},
			{
				-0.00116655, -0.00116655, -0.00116655, -0.00116655,
				-0.00116655, -0.00116655, -0.00116655, 0.0423505,
				0.788561, 1.49915, 1.90253, 2.21281,
				2.32039, 2.11602, 1.17933, 0.554893,
				-0.00116655, -0.00116655, -0.00116655, -0.00116655,
				-0.00116655, -0.00116655, -0.00116655, -0.00116655,
			},
			{
				0.880622512, 0.765503361, 0.726264441, 0.721386598,
				0.726880416, 0.786228314, 1.010281023, 1.336666859,
				1.296280243, 1.118839407, 1.140846204, 1.125344746,
				1.08711696, 1.057013237, 1.053087139, 1.117596916,
				1.375524106, 1.855103218, 2.209266367, 2.146772546,
				1.986157285, 1.812116819, 1.486383131, 1.163033043,
			},
		},
	}
}

// OrchardSeason holds five weeks of apple production, own consumption and
// market price.
func OrchardSeason() *Frame {
	return &Frame{
		Header: []string{"week", "produce", "demand", "price"},
		Columns: [][]float64{
			{1, 2, 3, 4, 5},
			{3, 7, 9, 5, 4},
			{2, 4, 2, 4, 2},
			{0.8, 0.9, 0.5, 1.2, 1.5},
		},
	}
}
