package ov534

// USB identity of the camera.
const (
	VendorID  = 0x1415
	ProductID = 0x2000
)

// Bridge registers driving the SCCB sidechannel to the sensor.
const (
	regSCCBAddress   = 0xf1
	regSCCBSubaddr   = 0xf2
	regSCCBWrite     = 0xf3
	regSCCBRead      = 0xf4
	regSCCBOperation = 0xf5
	regSCCBStatus    = 0xf6

	opWrite3 = 0x37 // address, subaddress, value
	opWrite2 = 0x33 // address, subaddress
	opRead2  = 0xf9 // address, read

	// SCCB slave address of the OV772x.
	sensorAddress = 0x42
)

// The LED hangs off two GPIO registers, direction at 0x21 and output at
// 0x23, bit 7 in both.
const (
	regLEDDirection = 0x21
	regLEDOutput    = 0x23
	ledBit          = 0x80
)

// Stream gate. 0x00 starts the sensor data flowing to the bulk endpoint,
// 0x09 stops it, 0x08 holds the bridge in reset during init.
const (
	regStreamCtrl = 0xe0
	streamOn      = 0x00
	streamOff     = 0x09
	streamHold    = 0x08
)

type regVal struct {
	reg uint8
	val uint8
}

var bridgeInit = []regVal{
	{0xe7, 0x3a},

	{regSCCBAddress, sensorAddress},

	{0xc2, 0x0c},
	{0x88, 0xf8},
	{0xc3, 0x69},
	{0x89, 0xff},
	{0x76, 0x03},
	{0x92, 0x01},
	{0x93, 0x18},
	{0x94, 0x10},
	{0x95, 0x10},
	{0xe2, 0x00},
	{0xe7, 0x3e},

	{0x96, 0x00},

	{0x97, 0x20},
	{0x97, 0x20},
	{0x97, 0x20},
	{0x97, 0x0a},
	{0x97, 0x3f},
	{0x97, 0x4a},
	{0x97, 0x20},
	{0x97, 0x15},
	{0x97, 0x0b},

	{0x8e, 0x40},
	{0x1f, 0x81},
	{0x34, 0x05},
	{0xe3, 0x04},
	{0x88, 0x00},
	{0x89, 0x00},
	{0x76, 0x00},
	{0xe7, 0x2e},
	{0x31, 0xf9},
	{0x25, 0x42},
	{0x21, 0xf0},

	{0x1c, 0x00},
	{0x1d, 0x40},
	{0x1d, 0x02}, // payload size 0x0200 * 4 = 2048 bytes
	{0x1d, 0x00},

	{0x1d, 0x02}, // frame size
	{0x1d, 0x58},
	{0x1d, 0x00},

	{0x1c, 0x0a},
	{0x1d, 0x08}, // turn on UVC headers
	{0x1d, 0x0e},

	{0x8d, 0x1c},
	{0x8e, 0x80},
	{0xe5, 0x04},

	{0xc0, 0x50},
	{0xc1, 0x3c},
	{0xc2, 0x0c},
}

var sensorInit = []regVal{
	{0x12, 0x80},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},
	{0x11, 0x01},

	{0x3d, 0x03},
	{0x17, 0x26},
	{0x18, 0xa0},
	{0x19, 0x07},
	{0x1a, 0xf0},
	{0x32, 0x00},
	{0x29, 0xa0},
	{0x2c, 0xf0},
	{0x65, 0x20},
	{0x11, 0x01},
	{0x42, 0x7f},
	{0x63, 0xaa}, // AWB off
	{0x64, 0xff},
	{0x66, 0x00},
	{0x13, 0xf0}, // COM8
	{0x0d, 0x41},
	{0x0f, 0xc5},
	{0x14, 0x11},

	{0x22, 0x7f},
	{0x23, 0x03},
	{0x24, 0x40},
	{0x25, 0x30},
	{0x26, 0xa1},
	{0x2a, 0x00},
	{0x2b, 0x00},
	{0x6b, 0xaa},
	{0x13, 0xff}, // COM8

	{0x90, 0x05},
	{0x91, 0x01},
	{0x92, 0x03},
	{0x93, 0x00},
	{0x94, 0x60},
	{0x95, 0x3c},
	{0x96, 0x24},
	{0x97, 0x1e},
	{0x98, 0x62},
	{0x99, 0x80},
	{0x9a, 0x1e},
	{0x9b, 0x08},
	{0x9c, 0x20},
	{0x9e, 0x81},

	{0xa6, 0x04},
	{0x7e, 0x0c},
	{0x7f, 0x16},
	{0x80, 0x2a},
	{0x81, 0x4e},
	{0x82, 0x61},
	{0x83, 0x6f},
	{0x84, 0x7b},
	{0x85, 0x86},
	{0x86, 0x8e},
	{0x87, 0x97},
	{0x88, 0xa4},
	{0x89, 0xaf},
	{0x8a, 0xc5},
	{0x8b, 0xd7},
	{0x8c, 0xe8},
	{0x8d, 0x20},

	{0x0c, 0x90},

	{0x2b, 0x00},
	{0x22, 0x7f},
	{0x23, 0x03},
	{0x11, 0x01},
	{0x0c, 0xd0},
	{0x64, 0xff},
	{0x0d, 0x41},

	{0x14, 0x41},
	{0x0e, 0xcd},
	{0xac, 0xbf},
	{0x8e, 0x00}, // de-noise threshold
	{0x0c, 0xd0},
}

var bridgeStartVGA = []regVal{
	{0x1c, 0x00},
	{0x1d, 0x40},
	{0x1d, 0x02},
	{0x1d, 0x00},
	{0x1d, 0x02},
	{0x1d, 0x58},
	{0x1d, 0x00},
	{0xc0, 0x50},
	{0xc1, 0x3c},
}

var sensorStartVGA = []regVal{
	{0x12, 0x00},
	{0x17, 0x26},
	{0x18, 0xa0},
	{0x19, 0x07},
	{0x1a, 0xf0},
	{0x29, 0xa0},
	{0x2c, 0xf0},
	{0x65, 0x20},
}

var bridgeStartQVGA = []regVal{
	{0x1c, 0x00},
	{0x1d, 0x40},
	{0x1d, 0x02},
	{0x1d, 0x00},
	{0x1d, 0x01},
	{0x1d, 0x4b},
	{0x1d, 0x00},
	{0xc0, 0x28},
	{0xc1, 0x1e},
}

var sensorStartQVGA = []regVal{
	{0x12, 0x40},
	{0x17, 0x3f},
	{0x18, 0x50},
	{0x19, 0x03},
	{0x1a, 0x78},
	{0x29, 0x50},
	{0x2c, 0x78},
	{0x65, 0x2f},
}

// frameRate maps a frame rate to the sensor clock divider (0x11), the PLL
// control (0x0d) and the bridge clock register (0xe5) that produce it.
type frameRate struct {
	fps int
	r11 uint8
	r0d uint8
	re5 uint8
}

var vgaRates = []frameRate{
	{60, 0x01, 0xc1, 0x04},
	{50, 0x01, 0x41, 0x02},
	{40, 0x02, 0xc1, 0x04},
	{30, 0x04, 0x81, 0x02},
	{15, 0x03, 0x41, 0x04},
}

var qvgaRates = []frameRate{
	{205, 0x01, 0xc1, 0x02}, // 205 fps: output is partly corrupt
	{187, 0x01, 0x81, 0x02}, // 187 fps and below is stable
	{150, 0x01, 0xc1, 0x04},
	{137, 0x02, 0xc1, 0x02},
	{125, 0x02, 0x81, 0x02},
	{100, 0x02, 0xc1, 0x04},
	{75, 0x03, 0xc1, 0x04},
	{60, 0x04, 0xc1, 0x04},
	{50, 0x02, 0x41, 0x04},
	{37, 0x03, 0x41, 0x04},
	{30, 0x04, 0x41, 0x04},
}
