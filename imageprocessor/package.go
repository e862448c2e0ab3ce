// Package imageprocessor classifies images with OpenCV's DNN module. Images are
// read through a small loader registry and fed to a network loaded with
// gocv.ReadNet (ONNX, Caffe, TensorFlow and the other formats OpenCV supports).
package imageprocessor
